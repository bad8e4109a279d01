package domain

import "errors"

// Error taxonomy shared by the service layer and the HTTP handlers.
// Anything not matching one of these sentinels is an unexpected fault and
// surfaces to the caller as an opaque failure.
var (
	// ErrInvalidInput means a name or email failed validation. Rejected
	// before any side effect, never partially applied.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict means a concurrent first-time subscribe won the creation
	// race. The caller should re-resolve via lookup.
	ErrConflict = errors.New("email already exists")

	// ErrNotFound means a confirmation token does not match any subscriber.
	ErrNotFound = errors.New("not found")
)
