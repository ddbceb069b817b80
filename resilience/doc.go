// Package resilience wraps fallible units of work - notably calls to the
// external text-generation service - with bounded retry and failure
// isolation.
//
// RetryHandler is a pure decision function (should we try again?) plus a
// deterministic exponential backoff calculator. CircuitBreaker counts
// consecutive failures and refuses calls for a cooldown, with the
// OPEN -> HALF_OPEN transition evaluated lazily at read time rather than by
// a background timer. Guard composes both with a per-operation fallback map
// supplied by the caller.
package resilience
