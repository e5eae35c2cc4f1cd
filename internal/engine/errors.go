package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors that stop a run.
type ErrorCode string

const (
	// ErrCodeMaxRetries means the same unresolved unit set failed more
	// often than the retry budget allows.
	ErrCodeMaxRetries ErrorCode = "MAX_RETRIES_EXCEEDED"

	// ErrCodeConfiguration means the run could not start. No attempt was made.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeTarget means the target infrastructure itself failed.
	ErrCodeTarget ErrorCode = "TARGET"
)

// Error is a run-stopping failure.
//
// Everything short of these is absorbed into the state as data. Error
// always reports how far the run got.
type Error struct {
	Code    ErrorCode
	Message string

	// Frontier is the number of units before the frontier when the run stopped.
	Frontier int

	// Excluded is the number of known-bad units.
	Excluded int

	// LastOutput is the output of the last failing validation.
	LastOutput string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Code != ErrCodeConfiguration {
		msg += fmt.Sprintf(" (frontier=%d, excluded=%d)", e.Frontier, e.Excluded)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// OutputTail returns at most the last n lines of LastOutput.
func (e *Error) OutputTail(n int) string {
	return tailLines(e.LastOutput, n)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsMaxRetries reports whether err is a max-retries abort.
func IsMaxRetries(err error) bool {
	return hasCode(err, ErrCodeMaxRetries)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsTargetError reports whether err is a target infrastructure error.
func IsTargetError(err error) bool {
	return hasCode(err, ErrCodeTarget)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// NewConfigError creates a configuration error.
func NewConfigError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

func newTargetError(st *State, op string, err error) *Error {
	return &Error{
		Code:     ErrCodeTarget,
		Message:  op,
		Frontier: st.Frontier,
		Excluded: len(st.KnownBad),
		Err:      err,
	}
}

func newMaxRetriesError(st *State, failures int, last string) *Error {
	return &Error{
		Code:       ErrCodeMaxRetries,
		Message:    fmt.Sprintf("unit set failed %d times without resolution", failures),
		Frontier:   st.Frontier,
		Excluded:   len(st.KnownBad),
		LastOutput: last,
	}
}
