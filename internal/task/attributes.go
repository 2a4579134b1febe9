package task

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Priority represents a task priority level.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// DefaultPriority is applied when a task carries no _Priority:_ annotation.
const DefaultPriority = PriorityMedium

// NewPriority parses a priority annotation. Matching is case-insensitive and
// accepts P0..P3 as aliases.
func NewPriority(value string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "critical", "p0", "urgent":
		return PriorityCritical, nil
	case "high", "p1":
		return PriorityHigh, nil
	case "medium", "p2", "normal":
		return PriorityMedium, nil
	case "low", "p3":
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("invalid priority %q: must be critical, high, medium, or low", value)
	}
}

// Validate checks if the priority is valid
func (p Priority) Validate() error {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return nil
	default:
		return fmt.Errorf("invalid priority %q: must be critical, high, medium, or low", string(p))
	}
}

// String returns the string representation
func (p Priority) String() string {
	return string(p)
}

// Rank returns a sortable weight, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Category is the kind of work a task represents, inferred from its text.
type Category string

const (
	CategoryTesting        Category = "testing"
	CategoryDocumentation  Category = "documentation"
	CategoryDesign         Category = "design"
	CategoryAnalysis       Category = "analysis"
	CategoryImplementation Category = "implementation"
)

// keyword order matters: the first category with a hit wins
var categoryKeywords = []struct {
	category Category
	words    []string
}{
	{CategoryTesting, []string{"test", "coverage", "verify", "validate", "qa", "e2e", "benchmark"}},
	{CategoryDocumentation, []string{"document", "docs", "readme", "changelog", "guide", "comment"}},
	{CategoryDesign, []string{"design", "architecture", "diagram", "mockup", "wireframe", "schema", "interface"}},
	{CategoryAnalysis, []string{"analy", "research", "investigate", "evaluate", "spike", "assess", "review"}},
}

// InferCategory picks a category from keywords in the title and description.
func InferCategory(title string, description []string) Category {
	text := strings.ToLower(title + " " + strings.Join(description, " "))
	for _, entry := range categoryKeywords {
		for _, w := range entry.words {
			if strings.Contains(text, w) {
				return entry.category
			}
		}
	}
	return CategoryImplementation
}

// Effort is a t-shirt size estimate.
type Effort string

const (
	EffortXS Effort = "xs"
	EffortS  Effort = "s"
	EffortM  Effort = "m"
	EffortL  Effort = "l"
	EffortXL Effort = "xl"
)

// EstimateEffort sizes a task by the length of its description.
func EstimateEffort(description []string) Effort {
	n := 0
	for _, line := range description {
		n += len(strings.TrimSpace(line))
	}
	switch {
	case n < 50:
		return EffortXS
	case n < 150:
		return EffortS
	case n < 400:
		return EffortM
	case n < 800:
		return EffortL
	default:
		return EffortXL
	}
}

var effortDuration = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(h|hr|hrs|hour|hours|d|day|days|w|week|weeks)\s*$`)

// ParseEffort interprets an _Effort:_ annotation. It accepts a size token
// ("m", "XL") or a duration ("4 hours", "2d", "1 week").
func ParseEffort(text string) (Effort, bool) {
	switch e := Effort(strings.ToLower(strings.TrimSpace(text))); e {
	case EffortXS, EffortS, EffortM, EffortL, EffortXL:
		return e, true
	}

	m := effortDuration.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", false
	}
	hours := n
	switch strings.ToLower(m[2][:1]) {
	case "d":
		hours = n * 8
	case "w":
		hours = n * 40
	}

	switch {
	case hours <= 1:
		return EffortXS, true
	case hours <= 4:
		return EffortS, true
	case hours <= 8:
		return EffortM, true
	case hours <= 24:
		return EffortL, true
	default:
		return EffortXL, true
	}
}
