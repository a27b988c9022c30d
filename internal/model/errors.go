package model

import "errors"

var (
	ErrInvalidInput = errors.New("invalid model input")
	ErrInference    = errors.New("model inference failed")
	ErrClosed       = errors.New("model server is closed")
)

// ValidationError carries a message that is safe to return to the client.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
