// Package completion decides whether a spec's checklist is finished by
// counting checkbox task lines in its tasks document.
package completion

import (
	"bufio"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/log"
)

// TasksFile is the checklist document inside a spec directory.
const TasksFile = "tasks.md"

var (
	taskLine  = regexp.MustCompile(`^\s*[-*+]?\s*\[( |x|X|✓)\]\s+\d+(?:\.\d+)*\.\s+\S`)
	fenceLine = regexp.MustCompile("^\\s*(```|~~~)")
)

// Status is the completion state of one spec. LastModified is the tasks
// document's modification time; for a complete spec it stands in for the
// completion date.
type Status struct {
	IsComplete     bool      `json:"isComplete" yaml:"isComplete"`
	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
	CompletedTasks int       `json:"completedTasks" yaml:"completedTasks"`
	Percentage     int       `json:"percentage" yaml:"percentage"`
	LastModified   time.Time `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	TasksPath      string    `json:"tasksPath" yaml:"tasksPath"`
	Found          bool      `json:"found" yaml:"found"`
}

// Detector computes completion from tasks documents on a filesystem.
type Detector struct {
	fs     afero.Fs
	logger *log.Logger
}

// NewDetector creates a detector reading from fs.
func NewDetector(fs afero.Fs, logger *log.Logger) *Detector {
	return &Detector{fs: fs, logger: log.OrDefault(logger)}
}

// CheckCompletion reports the completion state of the spec at specPath. It
// never fails: a missing or unreadable tasks document yields zero tasks.
func (d *Detector) CheckCompletion(specPath string) Status {
	path := filepath.Join(specPath, TasksFile)
	st := Status{TasksPath: path}

	data, err := afero.ReadFile(d.fs, path)
	if err != nil {
		d.logger.Debug("tasks document unavailable", "path", path, "error", err)
		return st
	}
	st.Found = true
	if info, err := d.fs.Stat(path); err == nil {
		st.LastModified = info.ModTime()
	}

	st.TotalTasks, st.CompletedTasks = Count(string(data))
	st.Percentage = Percentage(st.CompletedTasks, st.TotalTasks)
	st.IsComplete = IsComplete(st.CompletedTasks, st.TotalTasks)
	return st
}

// Count returns the number of task lines in content and how many are ticked.
// Lines inside fenced code blocks are ignored.
func Count(content string) (total, completed int) {
	inFence := false
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if fenceLine.MatchString(line) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := taskLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		total++
		if m[1] != " " {
			completed++
		}
	}
	return total, completed
}

// IsComplete is true only when there is at least one task and all are done.
func IsComplete(completed, total int) bool {
	return total > 0 && completed == total
}

// Percentage is round(100*completed/total), 0 when there are no tasks.
func Percentage(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(completed) / float64(total)))
}
