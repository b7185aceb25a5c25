package errors

import "errors"

var (
	ErrNotFound   = errors.New("resource could not be found")
	ErrConflict   = errors.New("resource already exists")
	ErrValidation = errors.New("validation failed")

	ErrLoginTaken      = errors.New("login name is already in use")
	ErrScreenNameTaken = errors.New("screen name is already in use")
)

// Re-exported so callers only import this package.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// Validation wraps ErrValidation with a client-safe message.
func Validation(msg string) error {
	return Public(ErrValidation, msg)
}
