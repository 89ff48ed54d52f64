package session

import "errors"

// Sentinel kinds for session errors.
var (
	// ErrInvariantViolation signals a programming error; callers must not absorb it.
	ErrInvariantViolation = errors.New("session invariant violated")
)
