package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeSpecNotFound, "test error message")

	if err.Code != ErrCodeSpecNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeSpecNotFound, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := Wrap(ErrCodeFileReadFailed, "failed to read file", cause)

	if err.Code != ErrCodeFileReadFailed {
		t.Errorf("expected code %s, got %s", ErrCodeFileReadFailed, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name      string
		err       *SpeckeeperError
		wantParts []string
	}{
		{
			name:      "simple error",
			err:       New(ErrCodeSpecInvalid, "invalid spec"),
			wantParts: []string{"[SPEC-002]", "invalid spec"},
		},
		{
			name:      "error with cause",
			err:       Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			wantParts: []string{"[IO-002]", "read failed", "permission denied"},
		},
		{
			name:      "error with suggestions",
			err:       New(ErrCodeConfigInvalid, "bad config").WithSuggestions("one", "two"),
			wantParts: []string{"Suggestions:", "• one", "• two"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(msg, part) {
					t.Errorf("expected %q in %q", part, msg)
				}
			}
		})
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want Category
	}{
		{ErrCodeSpecNotFound, CategoryFileNotFound},
		{ErrCodeSpecsRootNotFound, CategoryFileNotFound},
		{ErrCodeTaskParse, CategoryParse},
		{ErrCodeTaskValidation, CategoryValidation},
		{ErrCodeSpecInvalid, CategoryValidation},
		{ErrCodeConfigWrite, CategoryConfiguration},
		{ErrCodeIndexRead, CategoryConfiguration},
		{ErrCodeArchiveIntegrity, CategoryIntegrity},
		{ErrCodeArchiveCopy, CategoryIO},
		{ErrorCode("UNKNOWN-1"), CategoryIO},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").Category(); got != tt.want {
				t.Errorf("Category() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCategoryOfWrappedChain(t *testing.T) {
	inner := NewIntegrityError("file count mismatch")
	outer := fmt.Errorf("archive spec-a: %w", inner)

	cat, ok := CategoryOf(outer)
	if !ok {
		t.Fatal("expected coded error in chain")
	}
	if cat != CategoryIntegrity {
		t.Errorf("expected %s, got %s", CategoryIntegrity, cat)
	}

	code, ok := CodeOf(outer)
	if !ok || code != ErrCodeArchiveIntegrity {
		t.Errorf("expected code %s, got %s (ok=%v)", ErrCodeArchiveIntegrity, code, ok)
	}

	if _, ok := CategoryOf(fmt.Errorf("plain")); ok {
		t.Error("plain errors should carry no category")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *SpeckeeperError
		wantCode ErrorCode
		contains string
	}{
		{"spec not found", NewSpecNotFoundError("specs/auth"), ErrCodeSpecNotFound, "specs/auth"},
		{"specs root", NewSpecsRootNotFoundError("specs"), ErrCodeSpecsRootNotFound, "specs directory not found"},
		{"spec invalid", NewSpecInvalidError("auth", []string{"missing tasks.md"}), ErrCodeSpecInvalid, "missing tasks.md"},
		{"spec name", NewSpecNameInvalidError("../auth"), ErrCodeSpecNameInvalid, `"../auth"`},
		{"incomplete", NewSpecIncompleteError("auth", 1, 2), ErrCodeSpecIncomplete, "1/2"},
		{"integrity", NewIntegrityError("size mismatch"), ErrCodeArchiveIntegrity, "size mismatch"},
		{"config", NewConfigInvalidError([]string{"location is required"}), ErrCodeConfigInvalid, "location is required"},
		{"archive", NewArchiveNotFoundError("specs/archive/x"), ErrCodeArchiveNotFound, "specs/archive/x"},
		{"file", NewFileNotFoundError("tasks.md"), ErrCodeFileNotFound, "tasks.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, tt.err.Code)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("expected %q in %q", tt.contains, tt.err.Error())
			}
			if len(tt.err.Suggestions) == 0 {
				t.Error("expected at least one suggestion")
			}
		})
	}
}
