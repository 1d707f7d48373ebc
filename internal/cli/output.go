package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes.
const (
	ExitSuccess      = 0 // success
	ExitFailure      = 1 // the plan was invalid or aborted
	ExitCommandError = 2 // bad flags, unreadable file, unreachable database
)

// ExitError carries the process exit code of a failed command.
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

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, ExitFailure for any other error and
// ExitSuccess for nil.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitFailure
}

// Response is the JSON envelope written in json format.
type Response struct {
	Status string   `json:"status"`
	Data   any      `json:"data,omitempty"`
	Error  *Failure `json:"error,omitempty"`
}

// Failure describes why a command failed.
type Failure struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	StepIndex *int   `json:"step_index,omitempty"`
	StepName  string `json:"step_name,omitempty"`
}

// formatter writes command output as text or json.
type formatter struct {
	format string
	out    io.Writer
}

func (f *formatter) json() bool {
	return f.format == "json"
}

func (f *formatter) encode(v any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func (f *formatter) failure(failure Failure) error {
	if f.json() {
		return f.encode(Response{Status: "error", Error: &failure})
	}

	if failure.StepIndex != nil {
		_, err := fmt.Fprintf(f.out, "✗ step %d (%s) failed [%s]: %s\n", *failure.StepIndex, failure.StepName, failure.Code, failure.Message)

		return err
	}

	_, err := fmt.Fprintf(f.out, "✗ [%s] %s\n", failure.Code, failure.Message)

	return err
}
