package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the command ran and the operation was refused or failed
	ExitCommandError = 2 // the command could not run
)

// ErrorCode classifies a failed command in JSON error responses. Each
// code maps to exactly one exit code.
type ErrorCode string

const (
	// Refused by the engine or the import check; exit 1.
	CodeUnknownEntity ErrorCode = "E_UNKNOWN_ENTITY"
	CodeValidation    ErrorCode = "E_VALIDATION"
	CodeImport        ErrorCode = "E_IMPORT"
	CodeScenario      ErrorCode = "E_SCENARIO"

	// Remote and server failures; exit 1.
	CodeRemote ErrorCode = "E_REMOTE"
	CodeServe  ErrorCode = "E_SERVE"

	// The command could not run; exit 2.
	CodeConfig   ErrorCode = "E_CONFIG"
	CodeNoRemote ErrorCode = "E_NO_REMOTE"
	CodeStorage  ErrorCode = "E_STORAGE"
	CodeIO       ErrorCode = "E_IO"

	// Errors not raised through an ExitError; exit 1.
	CodeInternal ErrorCode = "E_INTERNAL"
)

var exitCodes = map[ErrorCode]int{
	CodeUnknownEntity: ExitFailure,
	CodeValidation:    ExitFailure,
	CodeImport:        ExitFailure,
	CodeScenario:      ExitFailure,
	CodeRemote:        ExitFailure,
	CodeServe:         ExitFailure,
	CodeConfig:        ExitCommandError,
	CodeNoRemote:      ExitCommandError,
	CodeStorage:       ExitCommandError,
	CodeIO:            ExitCommandError,
	CodeInternal:      ExitFailure,
}

// ExitCode returns the process exit code for c. Unknown codes exit 1.
func (c ErrorCode) ExitCode() int {
	if n, ok := exitCodes[c]; ok {
		return n
	}
	return ExitFailure
}

// ExitError is a command failure with its classification.
type ExitError struct {
	Code    ErrorCode
	Message string
	Err     error // optional

	reported bool // the command already wrote its failure response
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

// NewExitError creates an ExitError without an underlying cause.
func NewExitError(code ErrorCode, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError classifies err under code.
func WrapExitError(code ErrorCode, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ErrorCodeOf returns the code of the first ExitError in err's chain, or
// CodeInternal.
func ErrorCodeOf(err error) ErrorCode {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return CodeInternal
}

// GetExitCode returns the process exit code for err.
func GetExitCode(err error) int {
	return ErrorCodeOf(err).ExitCode()
}

// OutputFormatter writes command results as JSON responses or text.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the JSON envelope of every command result.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error body of a CLIResponse.
type CLIError struct {
	Code     ErrorCode `json:"code"`
	ExitCode int       `json:"exitCode"`
	Message  string    `json:"message"`
}

// Emit writes data as a JSON response, or calls text for human-readable
// output.
func (f *OutputFormatter) Emit(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail reports a failed command: a JSON error response, or a single
// "Error [code]: message" line.
func (f *OutputFormatter) Fail(err error) error {
	code := ErrorCodeOf(err)
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, ExitCode: code.ExitCode(), Message: err.Error()},
		})
	}
	_, werr := fmt.Fprintf(f.Writer, "Error [%s]: %v\n", code, err)
	return werr
}
