package spec

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/completion"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
)

var knownFiles = map[string]bool{
	RequirementsFile: true,
	DesignFile:       true,
	TasksFile:        true,
}

// ValidateSpec checks that a spec directory is well formed: tasks.md must be
// present and structurally sound, requirements.md and design.md are
// recommended, and anything else is reported as unexpected.
func (s *Scanner) ValidateSpec(path string) ValidationResult {
	res := ValidationResult{Issues: []string{}, Warnings: []string{}}

	if !fsutil.IsDir(s.fs, path) {
		res.Issues = append(res.Issues, fmt.Sprintf("spec directory not found: %s", path))
		return res
	}

	tasksPath := filepath.Join(path, TasksFile)
	if !fsutil.Exists(s.fs, tasksPath) {
		res.Issues = append(res.Issues, fmt.Sprintf("missing required file %s", TasksFile))
	} else if data, err := afero.ReadFile(s.fs, tasksPath); err != nil {
		res.Issues = append(res.Issues, fmt.Sprintf("cannot read %s: %v", TasksFile, err))
	} else {
		for _, issue := range completion.ValidateTasksFormat(string(data)) {
			msg := fmt.Sprintf("%s %s", TasksFile, issue)
			if issue.Line == 0 {
				msg = fmt.Sprintf("%s: %s", TasksFile, issue.Message)
			}
			if issue.Severity == completion.SeverityError {
				res.Issues = append(res.Issues, msg)
			} else {
				res.Warnings = append(res.Warnings, msg)
			}
		}
	}

	for _, f := range []string{RequirementsFile, DesignFile} {
		if !fsutil.Exists(s.fs, filepath.Join(path, f)) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("missing recommended file %s", f))
		}
	}

	entries, err := afero.ReadDir(s.fs, path)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("cannot list spec directory: %v", err))
	}
	for _, entry := range entries {
		name := entry.Name()
		if knownFiles[name] || strings.HasPrefix(name, ".") {
			continue
		}
		kind := "file"
		if entry.IsDir() {
			kind = "directory"
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("unexpected %s %s", kind, name))
	}

	res.Valid = len(res.Issues) == 0
	return res
}
