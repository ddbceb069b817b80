// Package protocol defines the addressed message envelope agents exchange,
// the finite verb set (dispatch, ack, progress, result, heartbeat, quota),
// sender/receiver helpers bound to a transport, and the token controller
// that compacts outbound instructions to a budget.
//
// The envelope is a pure data contract: constructors validate per-verb
// required fields and nothing here owns delivery semantics - that is the
// queue package's job.
package protocol
