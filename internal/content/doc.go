// Package content defines the narrow contracts the publishing engine consumes
// from the content domain: items, their lifecycle status, and the actors that
// act on them.
//
// The engine never depends on a concrete content type. Strategies operate on
// the Item interface; Article is the default thread-safe implementation used by
// the daemon and by tests.
//
// # Status lifecycle
//
//	Draft → Review → Published → Archived
//	  ↑       │          │
//	  └───────┴──────────┘ (rollback / withdraw)
//
// Allowed transitions are owned by the status type itself (see
// ValidTransitions). A pending scheduled publication is tracked as a separate
// marker on the item rather than as a status value.
package content
