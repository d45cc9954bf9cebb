// Package errors provides structured error types for stackmap.
//
// Resolution is best-effort: most failures are recorded and logged rather
// than returned. The codes here let callers (and the CLI summary) tell those
// recorded failures apart without string matching.
//
// # Error Codes
//
//   - INVALID_*: bad input (base URL, trace file, configuration)
//   - MAP_*: source map retrieval and decoding failures, never fatal
//   - SINK_*: results store failures, fatal for a run
//   - NETWORK_*, NOT_FOUND: content retrieval
//   - INTERNAL_*: unexpected internal errors
//
// # Usage
//
//	err := errors.Wrap(errors.ErrCodeMapParse, jsonErr, "source map for %s", url)
//	if errors.Is(err, errors.ErrCodeMapParse) {
//	    // fall back to raw positions
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidURL    Code = "INVALID_URL"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Source map errors
	ErrCodeMapFetch Code = "MAP_FETCH_FAILED"
	ErrCodeMapParse Code = "MAP_PARSE_FAILED"

	// Results sink errors
	ErrCodeSink Code = "SINK_FAILED"

	// Content retrieval errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeNetwork  Code = "NETWORK_ERROR"
	ErrCodeTimeout  Code = "TIMEOUT"

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
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error wrapping cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether any *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from err.
// Returns empty string if err carries no *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns the message without the code prefix for *Error values,
// and err.Error() otherwise.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
