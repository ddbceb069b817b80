// Package registry holds the authoritative task table. It enforces the task
// state machine (PENDING -> IN_PROGRESS -> COMPLETED/FAILED, cancellation
// from the two non-terminal states) and the single-ownership invariant:
// claiming is an atomic compare-and-set, so at most one agent ever owns a
// task. Lifecycle transitions are emitted to the storage recorder as
// append-only facts.
package registry
