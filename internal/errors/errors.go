package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error codes
const (
	// Spec errors (SPEC-001 to SPEC-099)
	ErrCodeSpecNotFound      ErrorCode = "SPEC-001"
	ErrCodeSpecInvalid       ErrorCode = "SPEC-002"
	ErrCodeSpecIncomplete    ErrorCode = "SPEC-003"
	ErrCodeSpecsRootNotFound ErrorCode = "SPEC-004"
	ErrCodeSpecExists        ErrorCode = "SPEC-005"
	ErrCodeSpecNameInvalid   ErrorCode = "SPEC-006"

	// Task document errors (TASK-001 to TASK-099)
	ErrCodeTaskParse      ErrorCode = "TASK-001"
	ErrCodeTaskValidation ErrorCode = "TASK-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigRead    ErrorCode = "CONFIG-001"
	ErrCodeConfigWrite   ErrorCode = "CONFIG-002"
	ErrCodeConfigInvalid ErrorCode = "CONFIG-003"
	ErrCodeIndexRead     ErrorCode = "CONFIG-004"
	ErrCodeIndexWrite    ErrorCode = "CONFIG-005"

	// Archival errors (ARCHIVE-001 to ARCHIVE-099)
	ErrCodeArchiveCopy          ErrorCode = "ARCHIVE-001"
	ErrCodeArchiveIntegrity     ErrorCode = "ARCHIVE-002"
	ErrCodeArchiveMetadata      ErrorCode = "ARCHIVE-003"
	ErrCodeArchiveRemove        ErrorCode = "ARCHIVE-004"
	ErrCodeArchiveRollback      ErrorCode = "ARCHIVE-005"
	ErrCodeArchiveNotFound      ErrorCode = "ARCHIVE-006"
	ErrCodeArchiveInterrupted   ErrorCode = "ARCHIVE-007"
	ErrCodeArchiveDestinationIO ErrorCode = "ARCHIVE-008"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
	ErrCodeDirectoryFailed ErrorCode = "IO-004"
)

// Category groups error codes into the taxonomy callers branch on.
type Category string

const (
	CategoryFileNotFound  Category = "file_not_found"
	CategoryParse         Category = "parse_error"
	CategoryValidation    Category = "validation_error"
	CategoryConfiguration Category = "configuration_error"
	CategoryIntegrity     Category = "integrity_error"
	CategoryIO            Category = "io_error"
)

var categories = map[ErrorCode]Category{
	ErrCodeSpecNotFound:         CategoryFileNotFound,
	ErrCodeSpecsRootNotFound:    CategoryFileNotFound,
	ErrCodeArchiveNotFound:      CategoryFileNotFound,
	ErrCodeFileNotFound:         CategoryFileNotFound,
	ErrCodeTaskParse:            CategoryParse,
	ErrCodeSpecInvalid:          CategoryValidation,
	ErrCodeSpecIncomplete:       CategoryValidation,
	ErrCodeSpecExists:           CategoryValidation,
	ErrCodeSpecNameInvalid:      CategoryValidation,
	ErrCodeTaskValidation:       CategoryValidation,
	ErrCodeConfigRead:           CategoryConfiguration,
	ErrCodeConfigWrite:          CategoryConfiguration,
	ErrCodeConfigInvalid:        CategoryConfiguration,
	ErrCodeIndexRead:            CategoryConfiguration,
	ErrCodeIndexWrite:           CategoryConfiguration,
	ErrCodeArchiveIntegrity:     CategoryIntegrity,
	ErrCodeArchiveInterrupted:   CategoryIntegrity,
	ErrCodeArchiveRollback:      CategoryIntegrity,
	ErrCodeArchiveCopy:          CategoryIO,
	ErrCodeArchiveMetadata:      CategoryIO,
	ErrCodeArchiveRemove:        CategoryIO,
	ErrCodeArchiveDestinationIO: CategoryIO,
	ErrCodeFileReadFailed:       CategoryIO,
	ErrCodeFileWriteFailed:      CategoryIO,
	ErrCodeDirectoryFailed:      CategoryIO,
}

// SpeckeeperError represents an enhanced error with code and suggestions
type SpeckeeperError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	Cause       error
}

// Error implements the error interface
func (e *SpeckeeperError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *SpeckeeperError) Unwrap() error {
	return e.Cause
}

// Category returns the taxonomy bucket of the error code.
func (e *SpeckeeperError) Category() Category {
	if c, ok := categories[e.Code]; ok {
		return c
	}
	return CategoryIO
}

// New creates a new SpeckeeperError
func New(code ErrorCode, message string) *SpeckeeperError {
	return &SpeckeeperError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new SpeckeeperError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *SpeckeeperError {
	return &SpeckeeperError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *SpeckeeperError) WithSuggestion(suggestion string) *SpeckeeperError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *SpeckeeperError) WithSuggestions(suggestions ...string) *SpeckeeperError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// CategoryOf returns the category of the first SpeckeeperError in err's chain.
// The second return value is false when the chain carries no coded error.
func CategoryOf(err error) (Category, bool) {
	var se *SpeckeeperError
	if stderrors.As(err, &se) {
		return se.Category(), true
	}
	return "", false
}

// CodeOf returns the code of the first SpeckeeperError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *SpeckeeperError
	if stderrors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// NewSpecNotFoundError creates a spec directory not found error
func NewSpecNotFoundError(path string) *SpeckeeperError {
	return New(ErrCodeSpecNotFound, fmt.Sprintf("spec not found: %s", path)).
		WithSuggestion("Run 'speckeeper scan' to list discovered specs").
		WithSuggestion("Check that the directory contains requirements.md, design.md or tasks.md")
}

// NewSpecsRootNotFoundError creates an error for a missing specs root
func NewSpecsRootNotFoundError(path string) *SpeckeeperError {
	return New(ErrCodeSpecsRootNotFound, fmt.Sprintf("specs directory not found: %s", path)).
		WithSuggestion("Pass --root or --specs-dir to point at your project").
		WithSuggestion("Create the directory with 'mkdir -p specs'")
}

// NewSpecInvalidError creates a spec validation error
func NewSpecInvalidError(name string, issues []string) *SpeckeeperError {
	return New(ErrCodeSpecInvalid, fmt.Sprintf("spec %s is invalid: %s", name, strings.Join(issues, "; "))).
		WithSuggestion(fmt.Sprintf("Run 'speckeeper status %s' to see validation details", name))
}

// NewSpecNameInvalidError creates an error for a name that is not a single
// directory directly under the specs root
func NewSpecNameInvalidError(name string) *SpeckeeperError {
	return New(ErrCodeSpecNameInvalid, fmt.Sprintf("invalid spec name %q: must be a directory directly under the specs root", name)).
		WithSuggestion("Pass the spec directory name only, for example 'auth' rather than 'specs/auth'")
}

// NewSpecIncompleteError creates an error for a spec that still has open tasks
func NewSpecIncompleteError(name string, completed, total int) *SpeckeeperError {
	return New(ErrCodeSpecIncomplete, fmt.Sprintf("spec %s is not complete (%d/%d tasks)", name, completed, total)).
		WithSuggestion("Check off the remaining tasks in tasks.md before archiving")
}

// NewIntegrityError creates a post-copy verification error
func NewIntegrityError(details string) *SpeckeeperError {
	return New(ErrCodeArchiveIntegrity, fmt.Sprintf("archive verification failed: %s", details)).
		WithSuggestion("The partial archive was removed; re-run the archival once the disk is healthy")
}

// NewConfigInvalidError creates a configuration validation error
func NewConfigInvalidError(problems []string) *SpeckeeperError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid archival configuration: %s", strings.Join(problems, "; "))).
		WithSuggestion("Run 'speckeeper config show' to inspect the current values").
		WithSuggestion("Run 'speckeeper config migrate' to rewrite the file with defaults filled in")
}

// NewArchiveNotFoundError creates an error for an unknown archive path
func NewArchiveNotFoundError(path string) *SpeckeeperError {
	return New(ErrCodeArchiveNotFound, fmt.Sprintf("archive not found: %s", path)).
		WithSuggestion("Run 'speckeeper archives list' to see archived specs")
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *SpeckeeperError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Verify the file exists and you have read permissions")
}
