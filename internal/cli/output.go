package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// OutputFormatter renders command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format  string // "text" or "json"
	Writer  io.Writer
	Verbose bool

	// ErrWriter receives verbose diagnostics so they never mix with a JSON
	// document on Writer. Nil means Writer.
	ErrWriter io.Writer
}

// CLIResponse is the JSON envelope every command writes.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError reports a failure by its problem-file (E1xx) or solver
// (NEWTON_DIVERGED, ...) code.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

func (f *OutputFormatter) emit(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// Success writes data as a JSON envelope, or text verbatim otherwise.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.isJSON() {
		return f.emit(CLIResponse{Status: statusOK, Data: data})
	}
	_, err := io.WriteString(f.Writer, text)
	return err
}

// Error writes a failure. Text output shows details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return f.emit(CLIResponse{
			Status: statusError,
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// VerboseLog writes one diagnostic line when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}
