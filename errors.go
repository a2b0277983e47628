package chronikcache

import "github.com/chronikcache/chronikcache/internal/domain"

// Error kinds the core distinguishes. A background build that fails (for
// example with ErrTransport) logs and sets the subject back to StateUnknown
// so the next history call restarts the flow. ErrLimitExceeded from the
// post-build eviction pass is only logged: the subject just built keeps
// its data and is still marked LATEST. Neither path corrupts durable state
// or crashes the process. These alias the
// sentinels internal components actually return/log, the way Subject/Tx in
// subject.go alias the internal domain model.
var (
	// ErrNotFound is a store miss; callers see it collapsed to a nil
	// result by the retry envelope's HandleDBOperation, not as an error.
	ErrNotFound = domain.ErrNotFound

	// ErrTransport covers indexer/subscription connectivity failures.
	// Retryable; fatal only after the retry envelope is exhausted.
	ErrTransport = domain.ErrTransport

	// ErrLimitExceeded means the durable store could not shrink to the
	// configured byte ceiling. Fatal for the current update/eviction
	// cycle; never corrupts already-written data.
	ErrLimitExceeded = domain.ErrLimitExceeded

	// ErrOutOfRange means the caller requested a page past the known end.
	// Surfaced as-is so facade layers can map it to e.g. HTTP 400.
	ErrOutOfRange = domain.ErrOutOfRange

	// ErrPolicyReject is never returned to callers directly; it is
	// reported through the history response's status code (REJECT
	// state), kept here for internal bookkeeping and tests.
	ErrPolicyReject = domain.ErrPolicyReject

	// ErrInternalInvariant marks a hash mismatch detected after repair;
	// it triggers a forced rebuild rather than surfacing to the caller.
	ErrInternalInvariant = domain.ErrInternalInvariant
)
