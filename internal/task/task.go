// Package task holds the domain model for checklist items parsed out of a
// spec's tasks.md document.
package task

import (
	"fmt"
	"time"
)

// Status is the checkbox state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Task is one checklist item inside a tasks document.
type Task struct {
	// ID is "{specName}-{number}".
	ID           string     `json:"id" yaml:"id"`
	// Number is the hierarchical numbering kept verbatim ("2.3.1").
	Number       string     `json:"number" yaml:"number"`
	Title        string     `json:"title" yaml:"title"`
	Description  []string   `json:"description,omitempty" yaml:"description,omitempty"`
	SpecName     string     `json:"specName" yaml:"specName"`
	Line         int        `json:"line" yaml:"line"`
	Status       Status     `json:"status" yaml:"status"`
	Priority     Priority   `json:"priority" yaml:"priority"`
	Category     Category   `json:"category" yaml:"category"`
	Requirements []string   `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Effort       Effort     `json:"estimatedEffort" yaml:"estimatedEffort"`
	Assignee     string     `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	CreatedAt    time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt" yaml:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	Notes        []string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Metadata     Metadata   `json:"metadata" yaml:"metadata"`
}

// Ref is a lightweight pointer to another task, used for parent, ancestor
// and child summaries.
type Ref struct {
	ID     string `json:"id" yaml:"id"`
	Number string `json:"number" yaml:"number"`
	Title  string `json:"title" yaml:"title"`
	Status Status `json:"status,omitempty" yaml:"status,omitempty"`
}

// ListStyle records how the enclosing markdown list was written.
type ListStyle struct {
	Ordered bool   `json:"ordered" yaml:"ordered"`
	// Start is the first number of an ordered list, 0 for bullets.
	Start   int    `json:"start" yaml:"start"`
	// Marker is the bullet or delimiter character: '-', '*', '+', '.' or ')'.
	Marker  string `json:"marker" yaml:"marker"`
}

// Metadata carries parse-time structure that is not part of the task's
// identity.
type Metadata struct {
	// Depth is the 1-based nesting level of the list holding the task.
	Depth      int       `json:"depth" yaml:"depth"`
	// Parent is the nearest enclosing task, nil for top-level tasks.
	Parent     *Ref      `json:"parent,omitempty" yaml:"parent,omitempty"`
	// Hierarchy lists ancestors root first, immediate parent last.
	Hierarchy  []Ref     `json:"hierarchy" yaml:"hierarchy"`
	Children   []Ref     `json:"children,omitempty" yaml:"children,omitempty"`
	Tags       []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	EffortNote string    `json:"effortNote,omitempty" yaml:"effortNote,omitempty"`
	ListStyle  ListStyle `json:"listStyle" yaml:"listStyle"`
}

// Ref returns a summary reference to t.
func (t *Task) Ref() Ref {
	return Ref{ID: t.ID, Number: t.Number, Title: t.Title, Status: t.Status}
}

// IsCompleted reports whether the checkbox is ticked.
func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// MakeID builds the stable task identifier.
func MakeID(specName, number string) string {
	if specName == "" {
		return number
	}
	return fmt.Sprintf("%s-%s", specName, number)
}
