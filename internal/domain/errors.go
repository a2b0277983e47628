package domain

import "errors"

// Error kinds the core distinguishes, defined here rather than in
// the root package so internal components can return the exact sentinel the
// facade re-exports, without an import cycle back through the root package.
var (
	// ErrNotFound is a store miss; callers see it collapsed to a nil
	// result by the retry envelope's HandleDBOperation, not as an error.
	ErrNotFound = errors.New("chronikcache: not found")

	// ErrTransport covers indexer/subscription connectivity failures.
	// Retryable; fatal only after the retry envelope is exhausted.
	ErrTransport = errors.New("chronikcache: transport error")

	// ErrLimitExceeded means the durable store could not shrink to the
	// configured byte ceiling. Fatal for the current update/eviction
	// cycle; never corrupts already-written data.
	ErrLimitExceeded = errors.New("chronikcache: cannot shrink store to configured limit")

	// ErrOutOfRange means the caller requested a page past the known end.
	// Surfaced as-is so facade layers can map it to e.g. HTTP 400.
	ErrOutOfRange = errors.New("chronikcache: page offset out of range")

	// ErrPolicyReject marks a subject over the configured tx-count limit
	// (REJECT state). Never returned to callers directly; it is reported
	// through the history response's status code, and logged here for
	// internal bookkeeping.
	ErrPolicyReject = errors.New("chronikcache: subject exceeds cache limit")

	// ErrInternalInvariant marks a hash mismatch detected after repair;
	// it triggers a forced rebuild rather than surfacing to the caller.
	ErrInternalInvariant = errors.New("chronikcache: internal invariant violated")
)
