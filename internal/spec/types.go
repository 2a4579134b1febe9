package spec

import (
	"time"

	"github.com/felixgeelhaar/speckeeper/internal/completion"
)

// Files a spec directory may contain.
const (
	RequirementsFile = "requirements.md"
	DesignFile       = "design.md"
	TasksFile        = completion.TasksFile
)

// Spec is a discovered unit of work. It is rebuilt on every scan.
type Spec struct {
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title" yaml:"title"`
	Path  string `json:"path" yaml:"path"`

	// Source file paths, empty when the file is absent.
	RequirementsPath string `json:"requirementsPath,omitempty" yaml:"requirementsPath,omitempty"`
	DesignPath       string `json:"designPath,omitempty" yaml:"designPath,omitempty"`
	TasksPath        string `json:"tasksPath,omitempty" yaml:"tasksPath,omitempty"`

	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
	CompletedTasks int       `json:"completedTasks" yaml:"completedTasks"`
	Percentage     int       `json:"percentage" yaml:"percentage"`
	IsComplete     bool      `json:"isComplete" yaml:"isComplete"`
	LastModified   time.Time `json:"lastModified" yaml:"lastModified"`

	// Names of other specs referenced from task dependencies, and the
	// inverse relation.
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty" yaml:"dependents,omitempty"`
}

// Completion returns the spec's completion counters as a completion.Status.
func (s *Spec) Completion() completion.Status {
	return completion.Status{
		IsComplete:     s.IsComplete,
		TotalTasks:     s.TotalTasks,
		CompletedTasks: s.CompletedTasks,
		Percentage:     s.Percentage,
		LastModified:   s.LastModified,
		TasksPath:      s.TasksPath,
		Found:          s.TasksPath != "",
	}
}

// ValidationResult says whether a spec directory is well formed. Issues make
// it invalid; warnings do not.
type ValidationResult struct {
	Valid    bool     `json:"valid" yaml:"valid"`
	Issues   []string `json:"issues" yaml:"issues"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

// Report aggregates validation across every discovered spec.
type Report struct {
	TotalSpecs    int                 `json:"totalSpecs" yaml:"totalSpecs"`
	ValidSpecs    []string            `json:"validSpecs" yaml:"validSpecs"`
	InvalidSpecs  []string            `json:"invalidSpecs" yaml:"invalidSpecs"`
	Issues        map[string][]string `json:"issues" yaml:"issues"`
	Warnings      map[string][]string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	CompleteSpecs []string            `json:"completeSpecs" yaml:"completeSpecs"`
	ReadySpecs    []string            `json:"readySpecs" yaml:"readySpecs"`
}
