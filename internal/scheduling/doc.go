// Package scheduling implements deferred publishing.
//
// Registry holds at most one live task per content id. Each task waits on a
// timer, then runs on a bounded worker pool. Scheduling an id that already
// has a pending task cancels that task first. Cancellation is safe to race
// with execution: a task that has started is left to finish, but the registry
// entry is removed exactly once.
//
// Strategy is the "scheduled" publish strategy built on Registry.
package scheduling
