// Package errors defines the sentinel errors shared by the credit ledger
// services and maps them to HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("credit not found")
	ErrAlreadyExists   = errors.New("credit already exists")
	ErrInvalidInput    = errors.New("invalid input")
	ErrStoreWrite      = errors.New("store write failed")
	ErrStoreRead       = errors.New("store read failed")
	ErrPublish         = errors.New("publish failed")
	ErrCompensation    = errors.New("compensation failed")
	ErrDeserialization = errors.New("deserialization failed")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrap tags cause with a taxonomy sentinel so that both errors.Is(err,
// sentinel) and errors.Is(err, cause) hold. A nil cause yields nil.
func Wrap(sentinel error, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", sentinel, fmt.Sprintf(format, args...), cause)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrDeserialization):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreRead), errors.Is(err, ErrStoreWrite), errors.Is(err, ErrPublish):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
