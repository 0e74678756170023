// Package errors provides domain error types shared across the module.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure categories.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")
	ErrUnavailable   = errors.New("service unavailable")
	ErrTimeout       = errors.New("operation timed out")
)

// New creates a new error with the given message.
func New(message string) error {
	return errors.New(message)
}

// Errorf creates a new formatted error.
func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Unwrap provides compatibility with the standard errors package.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Is provides compatibility with the standard errors package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As provides compatibility with the standard errors package.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join provides compatibility with the standard errors package.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Error represents a domain error with additional context.
type Error struct {
	// Original is the original error.
	Original error
	// Domain is the domain of the error (e.g., "orchestrator", "health").
	Domain string
	// Code is a machine-readable error code.
	Code string
	// Message is a human-readable error message.
	Message string
	// Operation is the operation that failed (e.g., "InitializeAll").
	Operation string
	// Fields contains additional context about the error.
	Fields map[string]any
}

// Error implements the error interface.
// Format: [Domain.Operation] Code=CODE: Message: Original
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString("[")
	if e.Domain != "" {
		sb.WriteString(e.Domain)
		if e.Operation != "" {
			sb.WriteString(".")
			sb.WriteString(e.Operation)
		}
	} else if e.Operation != "" {
		sb.WriteString(e.Operation)
	}
	sb.WriteString("] ")

	if e.Code != "" {
		sb.WriteString("Code=")
		sb.WriteString(e.Code)
		sb.WriteString(": ")
	}

	if e.Message != "" {
		sb.WriteString(e.Message)
	}

	if e.Original != nil {
		if e.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(e.Original.Error())
	}

	return sb.String()
}

// Unwrap implements the errors.Unwrapper interface.
func (e *Error) Unwrap() error {
	return e.Original
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		clone := *domainErr
		clone.Message = message
		return &clone
	}

	return &Error{
		Original: err,
		Message:  message,
	}
}

// WrapWithDomain wraps an error with a domain.
func WrapWithDomain(err error, domain string) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		clone := *domainErr
		clone.Domain = domain
		return &clone
	}

	return &Error{
		Original: err,
		Domain:   domain,
	}
}

// WrapWithOperation wraps an error with an operation.
func WrapWithOperation(err error, operation string) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		clone := *domainErr
		clone.Operation = operation
		return &clone
	}

	return &Error{
		Original:  err,
		Operation: operation,
	}
}

// WrapWithCode wraps an error with a machine-readable code.
func WrapWithCode(err error, code string) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		clone := *domainErr
		clone.Code = code
		return &clone
	}

	return &Error{
		Original: err,
		Code:     code,
	}
}

// WrapWithField wraps an error with a context field.
func WrapWithField(err error, key string, value any) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		clone := *domainErr
		clone.Fields = make(map[string]any, len(domainErr.Fields)+1)
		for k, v := range domainErr.Fields {
			clone.Fields[k] = v
		}
		clone.Fields[key] = value
		return &clone
	}

	return &Error{
		Original: err,
		Fields:   map[string]any{key: value},
	}
}
