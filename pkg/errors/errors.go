// Package errors provides structured error types for recipe rendering.
//
// Every fatal condition raised while rendering a recipe carries a [Code] so
// callers (the CLI, the HTTP server, tests) can tell a malformed selector from
// an unknown schema key or a circular build dependency without matching on
// message text.
//
// # Error Codes
//
// The codes mirror the rendering failure taxonomy:
//   - SYNTAX_ERROR: malformed selector, template or structured text
//   - SCHEMA_ERROR: unknown section/key, wrong section type, bad enum value
//   - SEMANTIC_ERROR: self-dependency, conflicting VCS revisions, bad characters
//   - UNRESOLVED_REFERENCE: template variables that never resolve
//   - UNSATISFIABLE_VARIANT: a dependency cannot be satisfied for a variant
//   - CIRCULAR_BUILD_DEPENDENCY: a build-phase cycle among outputs
//
// # Usage
//
//	err := errors.New(errors.ErrCodeSchema, "unknown section: %s", section)
//	if errors.Is(err, errors.ErrCodeSchema) {
//	    // Handle schema error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeSyntax, origErr, "failed to decode %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Recipe errors
	ErrCodeSyntax                  Code = "SYNTAX_ERROR"
	ErrCodeSchema                  Code = "SCHEMA_ERROR"
	ErrCodeSemantic                Code = "SEMANTIC_ERROR"
	ErrCodeUnresolvedReference     Code = "UNRESOLVED_REFERENCE"
	ErrCodeUnsatisfiableVariant    Code = "UNSATISFIABLE_VARIANT"
	ErrCodeCircularBuildDependency Code = "CIRCULAR_BUILD_DEPENDENCY"
	ErrCodeCircularExactPin        Code = "CIRCULAR_EXACT_PIN"
	ErrCodeNonConvergent           Code = "NON_CONVERGENT"

	// Input errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidPath  Code = "INVALID_PATH"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Recoverable reports whether err may be tolerated by a permissive run.
// Only unsatisfiable variants qualify; everything else aborts rendering.
func Recoverable(err error) bool {
	var ue *UnsatisfiableError
	return errors.As(err, &ue) || Is(err, ErrCodeUnsatisfiableVariant)
}

// UnsatisfiableError lists the packages that could not be satisfied for a
// variant. It is the error the dependency finalizer returns.
type UnsatisfiableError struct {
	Packages []string
	Variant  string
}

// Error implements the error interface.
func (e *UnsatisfiableError) Error() string {
	return fmt.Sprintf("%s: unsatisfiable dependencies for variant %s: %v",
		ErrCodeUnsatisfiableVariant, e.Variant, e.Packages)
}

// Code returns the error code for this error type.
func (e *UnsatisfiableError) Code() Code {
	return ErrCodeUnsatisfiableVariant
}

// Unwrap exposes an equivalent *Error so Is and GetCode recognise it.
func (e *UnsatisfiableError) Unwrap() error {
	return &Error{Code: ErrCodeUnsatisfiableVariant, Message: fmt.Sprintf("missing %v", e.Packages)}
}
