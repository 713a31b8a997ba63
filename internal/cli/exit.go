package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitSuccess = 0
	// ExitFailure covers failed solves, invalid problems and verification
	// mismatches.
	ExitFailure = 1
	// ExitCommandError covers bad flags, unreadable files and database errors.
	ExitCommandError = 2
)

// ExitError carries the exit code a command wants main to return.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return WrapExitError(code, message, nil)
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// exitf is NewExitError with a formatted message.
func exitf(code int, format string, args ...any) *ExitError {
	return NewExitError(code, fmt.Sprintf(format, args...))
}

// GetExitCode maps err to a process exit code. Errors that carry no
// ExitError anywhere in their chain are failures.
func GetExitCode(err error) int {
	var ee *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ee):
		return ee.Code
	default:
		return ExitFailure
	}
}
