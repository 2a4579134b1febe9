package completion

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// Severity grades a format issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FormatIssue is a structural problem in a tasks document.
type FormatIssue struct {
	Line     int      `json:"line" yaml:"line"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

func (i FormatIssue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Message)
}

var (
	anyCheckbox   = regexp.MustCompile(`^(\s*)(?:[-*+]\s*)?\[([\sxX✓✔✗*~/.-]{0,3})\]`)
	validMark     = regexp.MustCompile(`^( |x|X|✓)$`)
	untitledTask  = regexp.MustCompile(`^\s*[-*+]?\s*\[( |x|X|✓)\]\s*(\d+(?:\.\d+)*\.?)?\s*$`)
	numberedNoBox = regexp.MustCompile(`^\s*[-*+]\s+\d+(?:\.\d+)*\.\s+\S`)
)

// ValidateTasksFormat checks the layout of a tasks document. It is separate
// from completion counting: a document can be complete and still malformed.
func ValidateTasksFormat(content string) []FormatIssue {
	var issues []FormatIssue
	tasks := 0
	inFence := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if fenceLine.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		m := anyCheckbox.FindStringSubmatch(line)
		if m == nil {
			if numberedNoBox.MatchString(line) {
				issues = append(issues, FormatIssue{Line: n, Severity: SeverityWarning,
					Message: "numbered list item has no checkbox and will not be counted as a task"})
			}
			continue
		}

		if !validMark.MatchString(m[2]) {
			issues = append(issues, FormatIssue{Line: n, Severity: SeverityError,
				Message: fmt.Sprintf("unrecognized checkbox marker %q", "["+m[2]+"]")})
			continue
		}
		if untitledTask.MatchString(line) {
			issues = append(issues, FormatIssue{Line: n, Severity: SeverityError,
				Message: "checkbox has no task title"})
			continue
		}
		if taskLine.MatchString(line) {
			tasks++
		} else {
			issues = append(issues, FormatIssue{Line: n, Severity: SeverityWarning,
				Message: "checkbox item is not numbered and will not be counted as a task"})
		}

		indent := m[1]
		switch {
		case strings.Contains(indent, "\t"):
			issues = append(issues, FormatIssue{Line: n, Severity: SeverityWarning,
				Message: "task indented with tabs"})
		case len(indent)%2 != 0:
			issues = append(issues, FormatIssue{Line: n, Severity: SeverityWarning,
				Message: fmt.Sprintf("inconsistent indentation (%d spaces)", len(indent))})
		}
	}

	if tasks == 0 {
		issues = append(issues, FormatIssue{Line: 0, Severity: SeverityWarning, Message: "no tasks found"})
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []FormatIssue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
