package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

// Pipeline stage errors. Every stage failure wraps one of these so callers
// can classify with errors.Is regardless of how deep the cause sits.
var (
	ErrSourceUnreadable      = errors.New("source unreadable")
	ErrOCRUnavailable        = errors.New("ocr unavailable")
	ErrOutputWrite           = errors.New("output write failed")
	ErrExtractionUnavailable = errors.New("extraction unavailable")
	ErrMatcherUnavailable    = errors.New("matcher unavailable")
	// ErrDataIntegrity is never retried and never swallowed: it means a
	// transaction boundary failed to hold.
	ErrDataIntegrity = errors.New("data integrity violation")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
