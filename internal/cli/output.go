package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/beamio-APP/BeamioContract/internal/chain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A transaction reverted or a scenario failed
	ExitCommandError = 2 // Command error (bad arguments, unreadable manifest, database not found)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	TxID   string    `json:"tx_id,omitempty"` // transaction the command submitted
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // revert code, or ERROR
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. Text output
// prints data with fmt, so result types implement fmt.Stringer.
func (f *OutputFormatter) Success(data any) error {
	return f.write(CLIResponse{Status: "ok", Data: data}, func(w io.Writer) {
		fmt.Fprintln(w, data)
	})
}

// SuccessTx is Success for a command that submitted a transaction.
func (f *OutputFormatter) SuccessTx(txID string, data any) error {
	return f.write(CLIResponse{Status: "ok", Data: data, TxID: txID}, func(w io.Writer) {
		fmt.Fprintln(w, data)
		fmt.Fprintf(w, "tx: %s\n", txID)
	})
}

// Error outputs an error in the configured format. Text mode shows details
// only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	resp := CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: code, Message: message, Details: details},
	}
	return f.write(resp, func(w io.Writer) {
		fmt.Fprintf(w, "Error [%s]: %s\n", code, message)
		if f.Verbose && details != nil {
			fmt.Fprintf(w, "Details: %v\n", details)
		}
	})
}

// write emits resp as one JSON line, or calls text.
func (f *OutputFormatter) write(resp CLIResponse, text func(io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(resp)
	}
	text(f.Writer)
	return nil
}

// Revert reports a failed ledger operation and returns the ExitError the
// command should return. Revert codes become the CLI error code.
func (f *OutputFormatter) Revert(message string, err error) error {
	code := "ERROR"
	var details any
	var re *chain.RevertError
	if errors.As(err, &re) {
		code = string(re.Code)
		if len(re.Details) > 0 {
			details = re.Details
		}
	}
	if outErr := f.Error(code, err.Error(), details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
