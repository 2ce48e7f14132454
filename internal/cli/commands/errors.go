package commands

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/mergepivot/pkg/core"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Merge, pivot or preset failure (schema mismatch, bad spec, missing preset)
	ExitCommandError = 2 // Command error (unreadable files, bad flags, state database)
)

// ExitError carries the exit code a failed command should terminate with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Categorized core errors
// map to ExitFailure, anything else to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if core.KindOf(err) != "" {
		return ExitFailure
	}
	return ExitCommandError
}

// classify wraps err with the exit code matching its category.
func classify(message string, err error) error {
	if err == nil {
		return nil
	}
	if core.KindOf(err) != "" {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}
