package common

import (
	"errors"
	"net/http"
)

// AppError is an error that already knows how it renders over HTTP.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds an AppError. A zero status renders as 500.
func NewError(status int, code, message string, err error) *AppError {
	return &AppError{Status: status, Code: code, Message: message, Err: err}
}

// Unauthorized is the 401 every authentication failure maps to.
func Unauthorized(message string, err error) *AppError {
	return NewError(http.StatusUnauthorized, "UNAUTHORIZED", message, err)
}

// AsAppError returns the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var target *AppError
	if errors.As(err, &target) && target != nil {
		return target, true
	}
	return nil, false
}
