package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConnection = "CONNECTION" // dial, handshake, auth, connect timeout
	ErrExecution  = "EXECUTION"  // command channel failure or read timeout
	ErrTransfer   = "TRANSFER"   // SFTP sub-channel or local file I/O
	ErrArgs       = "ARGS"       // malformed or missing operation arguments
	ErrConfig     = "CONFIG"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
//
// Error() returns only the message: it is the text shown to the calling agent
// inside a response envelope. Pretty() renders the long form for terminals:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap classifies err under code, keeping the cause's own description as the
// message. An err that is already a structured Error is returned unchanged so
// the first classification wins.
func Wrap(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return &Error{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Errorf creates a structured error with a formatted message and no suggestion.
func Errorf(code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Pretty renders the error in the multi-line terminal format.
func (e *Error) Pretty() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	// Skip the cause when it is what the message already says
	if e.Cause != nil && e.Cause.Error() != e.Message {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Code == code
	}
	return false
}

// CodeOf returns the code of a structured error, or "" for anything else.
func CodeOf(err error) string {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return ""
}
