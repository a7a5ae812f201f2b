package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/orchestrator"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Workflow rejected the request, or drift found by check
	ExitCommandError = 2 // Command error (bad flags, unreadable file, store unavailable, etc.)
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
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
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // orchestrator error code, or INTERNAL
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
// In text mode data is rendered by renderText.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	return renderText(f.Writer, data)
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// Fail reports a workflow error and converts it to an ExitError.
//
// Errors carrying an orchestrator code are request failures (exit 1).
// Anything else is an infrastructure failure (exit 2).
func (f *OutputFormatter) Fail(err error) error {
	code := orchestrator.CodeOf(err)
	if code == "" {
		_ = f.Error("INTERNAL", err.Error(), nil)
		return WrapExitError(ExitCommandError, "command failed", err)
	}
	var details any
	if f.Verbose {
		if cause := errors.Unwrap(err); cause != nil {
			details = cause.Error()
		}
	}
	_ = f.Error(string(code), err.Error(), details)
	return WrapExitError(ExitFailure, string(code), err)
}

func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut, // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// renderText writes the human-readable form of the CLI result types.
func renderText(w io.Writer, data any) error {
	switch v := data.(type) {
	case model.Aggregate:
		return renderAggregate(w, v)
	case []model.Schema:
		return renderSchemaList(w, v)
	case model.Schema:
		_, err := fmt.Fprintf(w, "%s\t%s\t(%d properties)\n", v.ID, v.Name, len(v.PropertyIDs))
		return err
	case orchestrator.Report:
		return renderReport(w, v)
	default:
		_, err := fmt.Fprintln(w, data)
		return err
	}
}

func renderAggregate(w io.Writer, agg model.Aggregate) error {
	fmt.Fprintf(w, "Schema:   %s\n", agg.Name)
	fmt.Fprintf(w, "ID:       %s\n", agg.ID)
	fmt.Fprintf(w, "Version:  %d\n", agg.Version)
	fmt.Fprintf(w, "Updated:  %s\n", agg.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"))
	if len(agg.Properties) == 0 {
		_, err := fmt.Fprintln(w, "Properties: (none)")
		return err
	}

	fmt.Fprintln(w, "Properties:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range agg.Properties {
		kind := string(p.Type.Kind)
		if len(p.Type.Values) > 0 {
			kind += "(" + strings.Join(p.Type.Values, "|") + ")"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", p.Name, kind, p.ID)
	}
	return tw.Flush()
}

func renderSchemaList(w io.Writer, docs []model.Schema) error {
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "No schemas.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPROPERTIES\tVERSION")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", d.ID, d.Name, len(d.PropertyIDs), d.Version)
	}
	return tw.Flush()
}

func renderReport(w io.Writer, r orchestrator.Report) error {
	if r.Consistent() {
		_, err := fmt.Fprintf(w, "✓ Stores consistent (%d schemas, %d properties)\n", r.Schemas, r.Properties)
		return err
	}
	fmt.Fprintf(w, "✗ %d drift(s) found (%d schemas, %d properties)\n", len(r.Drifts), r.Schemas, r.Properties)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, d := range r.Drifts {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", d.Kind, orDash(d.SchemaName), orDash(d.PropertyID), d.Detail)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
