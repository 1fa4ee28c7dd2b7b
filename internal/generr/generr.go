// Package generr defines the structured error shared by every stage of a
// generation run.
package generr

import (
	"context"
	"errors"
	"fmt"
)

// Code categorizes run failures.
type Code string

const (
	InvalidInput        Code = "InvalidInput"
	MalformedDocument   Code = "MalformedDocument"
	UnsupportedVersion  Code = "UnsupportedVersion"
	UnresolvedReference Code = "UnresolvedReference"
	InconsistentModel   Code = "InconsistentModel"
	NameCollision       Code = "NameCollision"
	DestinationNotEmpty Code = "DestinationNotEmpty"
	IOFailure           Code = "IOFailure"
	Canceled            Code = "Canceled"
	Internal            Code = "Internal"
)

// Error is a structured error with optional location and JSON Pointer.
type Error struct {
	Code     Code
	Message  string
	Location string // file path, URL, endpoint id or output-relative path
	Pointer  string // e.g. "#/paths/~1pets/get"
	Cause    error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Cause }

// New returns an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error whose message ends with the cause text.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg = msg + ": " + cause.Error()
	}
	return &Error{Code: code, Message: msg, Cause: cause}
}

// At sets the location and returns the receiver.
func (e *Error) At(location string) *Error {
	e.Location = location
	return e
}

// WithPointer sets the JSON pointer and returns the receiver.
func (e *Error) WithPointer(pointer string) *Error {
	e.Pointer = pointer
	return e
}

// CodeOf reports the code of the first *Error in err's chain. Context
// cancellation maps to Canceled; anything else unknown maps to Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Canceled
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
