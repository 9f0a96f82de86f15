package domain

import "errors"

var ErrItemNotFound = errors.New("item not found in cart")

// ValidationError reports invalid caller input. It is never retried and maps
// to an unprocessable-entity response at the HTTP boundary.
type ValidationError struct {
	msg string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{msg: msg}
}

func (e *ValidationError) Error() string {
	return e.msg
}
