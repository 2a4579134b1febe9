package exitcode

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution
	Success = 0

	// GeneralError covers I/O failures and anything without a category
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// ValidationError indicates an incomplete, invalid or unparsable spec
	ValidationError = 3

	// IntegrityError indicates a failed archive verification or rollback
	IntegrityError = 4

	// ConfigError indicates an unreadable or invalid configuration or index
	ConfigError = 5

	// NotFound indicates a missing spec, specs directory or archive
	NotFound = 6

	// Interrupted follows the shell convention for SIGINT
	Interrupted = 130
)

var byCategory = map[errors.Category]int{
	errors.CategoryFileNotFound:  NotFound,
	errors.CategoryParse:         ValidationError,
	errors.CategoryValidation:    ValidationError,
	errors.CategoryConfiguration: ConfigError,
	errors.CategoryIntegrity:     IntegrityError,
	errors.CategoryIO:            GeneralError,
}

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps the error category of err to an exit code. Errors
// without a category are matched against the messages cobra produces for
// bad invocations.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}
	if cat, ok := errors.CategoryOf(err); ok {
		if code, ok := byCategory[cat]; ok {
			return code
		}
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
		"invalid argument",
		"required flag",
		"accepts ",
		"requires at least",
		"flag needs an argument",
	} {
		if strings.Contains(errMsg, marker) {
			return UsageError
		}
	}
	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case ValidationError:
		return "Spec validation failed"
	case IntegrityError:
		return "Archive integrity error"
	case ConfigError:
		return "Configuration error"
	case NotFound:
		return "Not found"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
