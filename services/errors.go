package services

import "errors"

// Failure taxonomy shared by the progression services. A denied award
// is NOT an error; it is a normal outcome carried on AwardResult.
var (
	// ErrNotFound: unknown validation id or (in strict mode) a reason
	// missing from the catalog. Indicates a caller bug, not a transient.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition: approve/reject on a resolved validation,
	// a self-vote, or a repeated vote. Surfaced to the caller, non-fatal.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrConcurrentUpdate: the optimistic version retry loop ran out of
	// attempts. Retryable with the same inputs; every write path is
	// idempotent under the store's uniqueness constraints.
	ErrConcurrentUpdate = errors.New("concurrent update, retry")
)
