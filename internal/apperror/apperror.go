package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrQuery        = errors.New("query failed")
	ErrPersistence  = errors.New("persistence failed")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
)

// AppError carries an error kind (one of the sentinels above), the
// underlying cause and a human-readable message.
type AppError struct {
	Kind    error
	Err     error
	Message string
	Field   string
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// AuthRequired reports an operation attempted without a signed-in principal.
func AuthRequired(operation string) *AppError {
	return &AppError{
		Kind:    ErrAuthRequired,
		Message: fmt.Sprintf("%s requires an authenticated user", operation),
	}
}

// Query wraps a failed remote read.
func Query(collection string, err error) *AppError {
	return &AppError{
		Kind:    ErrQuery,
		Err:     err,
		Message: fmt.Sprintf("query %s", collection),
	}
}

// Persistence wraps a failed remote write. A nil-principal mutation is
// reported as Persistence(..., AuthRequired(...)) so callers can match
// either kind.
func Persistence(operation, collection string, err error) *AppError {
	return &AppError{
		Kind:    ErrPersistence,
		Err:     err,
		Message: fmt.Sprintf("%s %s", operation, collection),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Kind:    ErrValidation,
		Message: message,
		Field:   field,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Kind:    ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}
