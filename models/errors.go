package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPersistence        = errors.New("persistence error")
	ErrDelivery           = errors.New("delivery error")

	// ErrInvalidTarget is returned for a status that cannot be set by an administrator.
	ErrInvalidTarget = fmt.Errorf("%w: invalid status", ErrValidation)
)

// AppError carries a user-facing message alongside one of the sentinel kinds above.
type AppError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func Validation(msg string) error {
	return &AppError{Kind: ErrValidation, Message: msg}
}

func NotFound(msg string) error {
	return &AppError{Kind: ErrNotFound, Message: msg}
}

func Persistence(op string, err error) error {
	return &AppError{Kind: ErrPersistence, Message: op, Err: err}
}

// Kind names the error class of err for structured payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
