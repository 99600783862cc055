package domain

import "errors"

// Sentinel errors for the expected, client-caused outcomes. The request
// surface dispatches on these with errors.Is; anything else is treated as an
// upstream incident and reported generically.
var (
	ErrValidation       = errors.New("missing required fields")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyCollected = errors.New("already collected")
)

// Error pairs a sentinel with the message shown to the caller.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

// E wraps kind with a user-facing message. errors.Is(E(kind, msg), kind)
// holds.
func E(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}
