package protocol

import "errors"

// Failure taxonomy for market operations. Every failure aborts the invoking
// operation with no partial state mutation, nothing is retried automatically,
// and the kind is surfaced verbatim to the caller. Classify with errors.Is.
var (
	// ErrUnauthorized rejects a caller lacking the owner, provider, or oracle
	// capability for the attempted action.
	ErrUnauthorized = errors.New("actor not authorized")

	// ErrPaused rejects mutating actions while the market is halted, and a
	// pause attempt when already halted.
	ErrPaused = errors.New("market is paused")

	// ErrNotPaused rejects an unpause attempt when the market is running.
	ErrNotPaused = errors.New("market is not paused")

	// ErrRateLimited rejects an action before the actor's cooldown for that
	// action class has elapsed.
	ErrRateLimited = errors.New("cooldown active")

	// ErrInvalidConfiguration rejects nonpositive cooldowns and malformed
	// boot parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBatchClosed rejects a contribution against a closed batch and a
	// close attempt on an already closed batch.
	ErrBatchClosed = errors.New("batch is closed")

	// ErrInvalidBatch rejects a disclosure referencing the current batch, an
	// open batch, a batch that does not exist, or an unknown request id.
	ErrInvalidBatch = errors.New("invalid batch reference")

	// ErrReplay rejects a second callback for an already processed request.
	ErrReplay = errors.New("disclosure already processed")

	// ErrStaleState rejects a callback whose aggregate digest no longer
	// matches the digest captured at request time.
	ErrStaleState = errors.New("aggregate changed since disclosure request")

	// ErrProofInvalid rejects a callback whose oracle proof fails
	// verification or whose cleartext payload is malformed.
	ErrProofInvalid = errors.New("decryption proof invalid")
)
