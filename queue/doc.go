// Package queue implements the in-process transport envelopes ride on:
// per-destination FIFO inboxes with blocking receive, deduplication by
// message identity, acknowledgment tracking, bounded redelivery and a
// dead-letter sink.
//
// Within one destination, delivery order equals send order except for
// redelivered entries, which land at the tail. The queue never interprets
// payload semantics; it forwards, times out or discards envelopes.
package queue
