package ux

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

// ErrorWithSuggestion wraps an error with helpful recovery suggestions
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap provides access to the underlying error
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// NewErrorWithSuggestion creates a new error with a suggestion
func NewErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// EnhanceError adds a suggestion to operating system errors that carry no
// error code. Coded errors already carry their own suggestions and are
// returned unchanged.
func EnhanceError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.CodeOf(err); ok {
		return err
	}

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "permission denied"):
		return NewErrorWithSuggestion(err,
			"Check that you can write to the specs and archive directories")
	case strings.Contains(errMsg, "read-only file system"):
		return NewErrorWithSuggestion(err,
			"Archiving moves files; run speckeeper on a writable checkout")
	case strings.Contains(errMsg, "no space left on device"):
		return NewErrorWithSuggestion(err,
			"Free disk space, then run 'speckeeper archives recover' to finish interrupted archives")
	case strings.Contains(errMsg, "no such file or directory"):
		return NewErrorWithSuggestion(err,
			"Run 'speckeeper scan' from the project root or pass --root")
	}
	return err
}

// ErrorReport is the structured form of an error for JSON and YAML output.
type ErrorReport struct {
	Code        string   `json:"code,omitempty" yaml:"code,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Message     string   `json:"message" yaml:"message"`
	Cause       string   `json:"cause,omitempty" yaml:"cause,omitempty"`
	Suggestions []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

// NewErrorReport flattens err. The first coded error in the chain supplies
// the code, category and suggestions.
func NewErrorReport(err error) ErrorReport {
	err = EnhanceError(err)

	var se *errors.SpeckeeperError
	if stderrors.As(err, &se) {
		r := ErrorReport{
			Code:        string(se.Code),
			Category:    string(se.Category()),
			Message:     se.Message,
			Suggestions: append([]string(nil), se.Suggestions...),
		}
		if se.Cause != nil {
			r.Cause = se.Cause.Error()
		}
		return r
	}

	var ews *ErrorWithSuggestion
	if stderrors.As(err, &ews) {
		return ErrorReport{Message: ews.Err.Error(), Suggestions: []string{ews.Suggestion}}
	}
	return ErrorReport{Message: err.Error()}
}

// Render writes the report as styled text.
func (r ErrorReport) Render(s Styles) string {
	var b strings.Builder
	b.WriteString(s.Error.Render("Error"))
	if r.Code != "" {
		b.WriteString(" " + s.Code.Render("["+r.Code+"]"))
	}
	b.WriteString(" " + r.Message)
	if r.Cause != "" {
		b.WriteString(s.Muted.Render(": " + r.Cause))
	}
	if len(r.Suggestions) > 0 {
		b.WriteString("\n")
		for _, sg := range r.Suggestions {
			b.WriteString("\n  " + s.Warning.Render("→") + " " + sg)
		}
	}
	return b.String()
}

// Payload wraps the report so JSON output reads {"error": {...}}.
func (r ErrorReport) Payload() any {
	return map[string]ErrorReport{"error": r}
}

// RenderError writes err to w in the given format. Unknown formats fall back
// to text.
func RenderError(w io.Writer, format string, noColor bool, err error) {
	if err == nil {
		return
	}
	p, perr := NewPrinter(format, w, noColor)
	if perr != nil {
		p, _ = NewPrinter(FormatText, w, noColor)
	}
	_ = p.Print(NewErrorReport(err))
}
