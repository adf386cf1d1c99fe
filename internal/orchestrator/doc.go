// Package orchestrator selects, executes, and falls back across publishing
// strategies.
//
// PublishContent resolves a strategy (the pinned one, or the selector's
// choice when automatic selection is on), validates and runs it, and on
// failure tries the configured fallback once. Every attempt updates the
// strategy's usage stats and performance window, whatever the outcome.
//
// Tables are independently locked: registration, usage stats and
// performance samples never share a lock, so unrelated publishes do not
// serialize on the orchestrator.
package orchestrator
