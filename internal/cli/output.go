package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Azure/azure-cli-sub020/internal/ir"
	"github.com/Azure/azure-cli-sub020/internal/query"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = ir.ExitOK      // Condition satisfied, command succeeded
	ExitFailure      = ir.ExitFailure // Wait failed, request failed
	ExitCommandError = ir.ExitUsage   // Invalid flags, arguments or configuration
	ExitTimeout      = ir.ExitTimeout // Wait timed out or was canceled
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code
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

// ExitCode returns the process exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
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
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
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

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatText = "text"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatJSON, FormatYAML, FormatText}

// OutputFormatter renders command results. Results go to Writer;
// diagnostics go to ErrWriter so they never corrupt structured output.
type OutputFormatter struct {
	Format    string
	Query     *query.Path // optional --query projection
	Writer    io.Writer
	ErrWriter io.Writer // defaults to Writer
	Verbose   bool
}

// Print applies the --query projection to data and writes it in the
// configured format.
func (f *OutputFormatter) Print(data any) error {
	doc, err := toDocument(data)
	if err != nil {
		return err
	}
	if f.Query != nil {
		doc, err = f.Query.Search(doc)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --query", err)
		}
	}

	switch f.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		return writeText(f.Writer, doc)
	default:
		enc := json.NewEncoder(f.Writer)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}

// Error writes a one-line error message to ErrWriter.
func (f *OutputFormatter) Error(message string) {
	fmt.Fprintf(f.GetErrWriter(), "ERROR: %s\n", message)
}

// VerboseLog outputs a message only if verbose mode is enabled.
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

// toDocument converts data to the generic JSON form queries operate on.
func toDocument(data any) (any, error) {
	switch v := data.(type) {
	case ir.Snapshot:
		return v.Document(), nil
	case nil, map[string]any, []any, string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	return doc, nil
}

// writeText renders doc as tab-separated values: one line per list
// element, the scalar fields of an object in key order.
func writeText(w io.Writer, doc any) error {
	switch v := doc.(type) {
	case nil:
		return nil
	case []any:
		for _, elem := range v {
			if err := writeText(w, elem); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := scalarText(v[k]); ok {
				fields = append(fields, s)
			}
		}
		_, err := fmt.Fprintln(w, strings.Join(fields, "\t"))
		return err
	default:
		s, _ := scalarText(v)
		_, err := fmt.Fprintln(w, s)
		return err
	}
}

func scalarText(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "None", true
	case string:
		return s, true
	case bool:
		if s {
			return "True", true
		}
		return "False", true
	case float64:
		data, _ := json.Marshal(s)
		return string(data), true
	default:
		return "", false
	}
}
