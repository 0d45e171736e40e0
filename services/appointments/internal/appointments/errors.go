package appointments

import "errors"

var ErrNotFound = errors.New("appointment not found")

// ValidationError is a client-caused failure that must not be retried.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(msg string, err error) error {
	return &ValidationError{Message: msg, Err: err}
}
