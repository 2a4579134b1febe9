package exitcode

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"ValidationError", ValidationError, 3},
		{"IntegrityError", IntegrityError, 4},
		{"ConfigError", ConfigError, 5},
		{"NotFound", NotFound, 6},
		{"Interrupted", Interrupted, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error returns success",
			err:      nil,
			expected: Success,
		},
		{
			name:     "missing spec",
			err:      errors.NewSpecNotFoundError("/p/specs/auth"),
			expected: NotFound,
		},
		{
			name:     "incomplete spec",
			err:      errors.NewSpecIncompleteError("auth", 1, 2),
			expected: ValidationError,
		},
		{
			name:     "task parse error",
			err:      errors.New(errors.ErrCodeTaskParse, "bad line"),
			expected: ValidationError,
		},
		{
			name:     "verification failure",
			err:      errors.NewIntegrityError("size mismatch"),
			expected: IntegrityError,
		},
		{
			name:     "invalid config",
			err:      errors.New(errors.ErrCodeConfigInvalid, "archiveDelay must be >= 0"),
			expected: ConfigError,
		},
		{
			name:     "copy failure",
			err:      errors.New(errors.ErrCodeArchiveCopy, "disk full"),
			expected: GeneralError,
		},
		{
			name:     "wrapped coded error",
			err:      fmt.Errorf("archive auth: %w", errors.NewIntegrityError("digest mismatch")),
			expected: IntegrityError,
		},
		{
			name:     "cancelled",
			err:      fmt.Errorf("pass aborted: %w", context.Canceled),
			expected: Interrupted,
		},
		{
			name:     "unknown command",
			err:      stderrors.New(`unknown command "frob" for "speckeeper"`),
			expected: UsageError,
		},
		{
			name:     "unknown flag",
			err:      stderrors.New("unknown flag: --foo"),
			expected: UsageError,
		},
		{
			name:     "wrong arg count",
			err:      stderrors.New("accepts 1 arg(s), received 0"),
			expected: UsageError,
		},
		{
			name:     "generic error",
			err:      stderrors.New("something went wrong"),
			expected: GeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	for _, code := range []int{Success, GeneralError, UsageError, ValidationError, IntegrityError, ConfigError, NotFound, Interrupted} {
		if got := GetExitCodeDescription(code); got == "Unknown error" {
			t.Errorf("GetExitCodeDescription(%d) has no description", code)
		}
	}
	if got := GetExitCodeDescription(42); got != "Unknown error" {
		t.Errorf("GetExitCodeDescription(42) = %q, want Unknown error", got)
	}
}
