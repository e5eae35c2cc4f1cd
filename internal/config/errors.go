package config

import (
	"errors"
	"fmt"
)

// Error is a configuration problem. The CLI reports it with exit code 2.
type Error struct {
	// File is the configuration file involved, if any.
	File string

	// Field is the dotted key path, if the problem is tied to one key.
	Field string

	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsError reports whether err is or wraps a configuration Error.
func IsError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}

func fileError(file string, err error, format string, args ...any) *Error {
	return &Error{File: file, Message: fmt.Sprintf(format, args...), Err: err}
}

func fieldError(field string, format string, args ...any) *Error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}
