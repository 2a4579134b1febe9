package markdown

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/felixgeelhaar/speckeeper/internal/completion"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/task"
)

func parse(t *testing.T, src string) Result {
	t.Helper()
	p := NewParser(Options{SpecName: "auth", Now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}, log.Discard())
	return p.ParseSource([]byte(src))
}

func TestParseFlatList(t *testing.T) {
	res := parse(t, "# Tasks\n\n- [x] 1. Setup\n- [ ] 2. Build\n")

	require.Len(t, res.Tasks, 2)
	assert.Empty(t, res.Errors)

	first := res.Tasks[0]
	assert.Equal(t, "auth-1", first.ID)
	assert.Equal(t, "1", first.Number)
	assert.Equal(t, "Setup", first.Title)
	assert.Equal(t, task.StatusCompleted, first.Status)
	assert.NotNil(t, first.CompletedAt)
	assert.Equal(t, 3, first.Line)
	assert.Equal(t, 1, first.Metadata.Depth)
	assert.Nil(t, first.Metadata.Parent)
	assert.Empty(t, first.Metadata.Hierarchy)

	second := res.Tasks[1]
	assert.Equal(t, task.StatusPending, second.Status)
	assert.Nil(t, second.CompletedAt)
	assert.Equal(t, task.PriorityMedium, second.Priority)
	assert.Equal(t, 4, second.Line)

	total, completed := res.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, completed)
}

func TestParseCheckboxVariants(t *testing.T) {
	src := "- [x] 1. lower\n* [X] 2. upper\n+ [✓] 3. check\n- [ ] 4. open\n"
	res := parse(t, src)

	require.Len(t, res.Tasks, 4)
	for _, tk := range res.Tasks[:3] {
		assert.Equal(t, task.StatusCompleted, tk.Status, tk.Title)
	}
	assert.Equal(t, task.StatusPending, res.Tasks[3].Status)
}

func TestParseHierarchy(t *testing.T) {
	src := strings.Join([]string{
		"- [ ] 1. Root",
		"  - [ ] 1.1. Child",
		"    - [x] 1.1.1. Grandchild",
		"  - [ ] 1.2. Second child",
		"- [ ] 2. Other root",
		"",
	}, "\n")
	res := parse(t, src)
	require.Len(t, res.Tasks, 5)
	require.Empty(t, res.Errors)

	byNumber := map[string]*task.Task{}
	for _, tk := range res.Tasks {
		byNumber[tk.Number] = tk
	}

	grand := byNumber["1.1.1"]
	require.NotNil(t, grand)
	assert.Equal(t, 3, grand.Metadata.Depth)
	require.Len(t, grand.Metadata.Hierarchy, 2)
	assert.Equal(t, "1", grand.Metadata.Hierarchy[0].Number)
	assert.Equal(t, "1.1", grand.Metadata.Hierarchy[1].Number)
	require.NotNil(t, grand.Metadata.Parent)
	assert.Equal(t, "1.1", grand.Metadata.Parent.Number)

	second := byNumber["1.2"]
	require.NotNil(t, second.Metadata.Parent)
	assert.Equal(t, "1", second.Metadata.Parent.Number)
	assert.Len(t, second.Metadata.Hierarchy, 1)

	root := byNumber["1"]
	require.Len(t, root.Metadata.Children, 2)
	assert.Equal(t, "1.1", root.Metadata.Children[0].Number)
	assert.Equal(t, "1.2", root.Metadata.Children[1].Number)

	other := byNumber["2"]
	assert.Nil(t, other.Metadata.Parent, "siblings must not inherit a previous subtree's ancestors")
	assert.Empty(t, other.Metadata.Hierarchy)
}

func TestParseMaxDepth(t *testing.T) {
	src := strings.Join([]string{
		"- [ ] 1. One",
		"  - [ ] 1.1. Two",
		"    - [ ] 1.1.1. Three",
		"      - [ ] 1.1.1.1. Four",
		"",
	}, "\n")
	res := parse(t, src)

	assert.Len(t, res.Tasks, 3)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrorTypeValidation, res.Errors[0].Type)
	assert.Contains(t, res.Errors[0].Message, "exceeds maximum 3")
	assert.Equal(t, 4, res.Errors[0].Line)

	deeper := NewParser(Options{MaxDepth: 4}, log.Discard()).ParseSource([]byte(src))
	assert.Len(t, deeper.Tasks, 4)
	assert.Empty(t, deeper.Errors)
}

func TestParseAnnotations(t *testing.T) {
	src := strings.Join([]string{
		"- [ ] 1. Implement token refresh",
		"  Rotate refresh tokens on every use.",
		"  _Requirements: FR1, FR2_",
		"  _Dependencies: #1, , billing_",
		"  _Priority: high_",
		"  _Effort: 4 hours_",
		"  _Assignee: sam_",
		"  _Tags: security, backend_",
		"",
	}, "\n")
	res := parse(t, src)
	require.Len(t, res.Tasks, 1)

	tk := res.Tasks[0]
	assert.Equal(t, []string{"FR1", "FR2"}, tk.Requirements)
	assert.Equal(t, []string{"#1", "billing"}, tk.Dependencies)
	assert.Equal(t, task.PriorityHigh, tk.Priority)
	assert.Equal(t, task.EffortS, tk.Effort)
	assert.Equal(t, "4 hours", tk.Metadata.EffortNote)
	assert.Equal(t, "sam", tk.Assignee)
	assert.Equal(t, []string{"security", "backend"}, tk.Metadata.Tags)
	assert.Equal(t, []string{"Rotate refresh tokens on every use."}, tk.Description)
}

func TestParseAnnotationOverwrites(t *testing.T) {
	src := "- [ ] 1. Task\n  _Requirements: A_\n  _Requirements: B, C_\n"
	res := parse(t, src)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, []string{"B", "C"}, res.Tasks[0].Requirements)
}

func TestParseAnnotationInLaterParagraph(t *testing.T) {
	src := "- [ ] 1. Task\n\n  Some context.\n\n  _Requirements: FR1, FR2_\n"
	res := parse(t, src)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, []string{"FR1", "FR2"}, res.Tasks[0].Requirements)
	assert.Equal(t, []string{"Some context."}, res.Tasks[0].Description)
}

func TestParseNestedBulletBody(t *testing.T) {
	src := strings.Join([]string{
		"- [ ] 1. Set up project",
		"  - Create directories",
		"  - _Requirements: 1.1, 1.2_",
		"  - [ ] 1.1. Scaffold",
		"    - _Priority: high_",
		"  - Wire CI",
		"    - _Tags: infra_",
		"",
	}, "\n")
	res := parse(t, src)
	require.Empty(t, res.Errors)
	require.Len(t, res.Tasks, 2)

	root, child := res.Tasks[0], res.Tasks[1]
	assert.Equal(t, "Set up project", root.Title)
	assert.Equal(t, []string{"Create directories", "Wire CI"}, root.Description)
	assert.Equal(t, []string{"1.1", "1.2"}, root.Requirements)
	assert.Equal(t, []string{"infra"}, root.Metadata.Tags)
	assert.Equal(t, task.DefaultPriority, root.Priority)

	assert.Equal(t, "1.1", child.Number)
	assert.Equal(t, task.PriorityHigh, child.Priority)
	assert.Empty(t, child.Requirements)
}

func TestParseRequiresSpaceAfterCheckbox(t *testing.T) {
	src := "- [x]1. Tight\n- [x] 2. Spaced\n- [ ]3. Also tight\n"
	res := parse(t, src)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "2", res.Tasks[0].Number)

	total, completed := res.Counts()
	wantTotal, wantCompleted := completion.Count(src)
	assert.Equal(t, wantTotal, total)
	assert.Equal(t, wantCompleted, completed)
}

func TestParseIgnoresNonTasks(t *testing.T) {
	src := strings.Join([]string{
		"1. Missing checkbox",
		"",
		"- [ ] unnumbered item",
		"- plain bullet",
		"  - [ ] 1. Nested under plain bullet",
		"",
	}, "\n")
	res := parse(t, src)

	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "Nested under plain bullet", res.Tasks[0].Title)
	assert.Equal(t, 2, res.Tasks[0].Metadata.Depth)
	assert.Nil(t, res.Tasks[0].Metadata.Parent)
	assert.Empty(t, res.Errors)
}

func TestParseValidationErrors(t *testing.T) {
	src := "- [ ] 1.\n- [ ] 1..2. Bad number\n- [ ] 3. Good\n"
	res := parse(t, src)

	require.Len(t, res.Tasks, 1)
	assert.Equal(t, "3", res.Tasks[0].Number)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0].Message, "title is missing")
	assert.Equal(t, 1, res.Errors[0].Line)
	assert.Contains(t, res.Errors[1].Message, "N(.N)*")
	assert.Equal(t, "[ ] 1..2. Bad number", res.Errors[1].TaskText)
}

func TestParseListStyle(t *testing.T) {
	res := parse(t, "3. [ ] 1. Ordered parent\n4. [x] 2. Next\n")
	require.Len(t, res.Tasks, 2)
	style := res.Tasks[0].Metadata.ListStyle
	assert.True(t, style.Ordered)
	assert.Equal(t, 3, style.Start)
	assert.Equal(t, ".", style.Marker)

	bullets := parse(t, "* [ ] 1. Star\n")
	require.Len(t, bullets.Tasks, 1)
	assert.False(t, bullets.Tasks[0].Metadata.ListStyle.Ordered)
	assert.Equal(t, "*", bullets.Tasks[0].Metadata.ListStyle.Marker)
}

func TestParseKeepsMultiLevelNumberAsString(t *testing.T) {
	res := parse(t, "- [ ] 2.3.1. Deep numbering\n- [ ] 2.10. Not a float\n")
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "2.3.1", res.Tasks[0].Number)
	assert.Equal(t, "2.10", res.Tasks[1].Number)
	assert.Equal(t, "auth-2.10", res.Tasks[1].ID)
}

func TestParseItemPanicBecomesParseError(t *testing.T) {
	doc := &Document{Children: []Node{
		&List{Items: []*ListItem{
			{Line: 1, Children: []Node{&Paragraph{Line: 1, Lines: []Line{{Number: 1, Inlines: []Node{&Text{Value: "[ ] 1. Fine"}}}}}}},
			{Line: 2, Children: []Node{&Paragraph{Line: 2, Lines: []Line{{Number: 2, Inlines: []Node{&Text{Value: "[ ] 2. Broken"}}}}}, (*Paragraph)(nil)}},
			{Line: 3, Children: []Node{&Paragraph{Line: 3, Lines: []Line{{Number: 3, Inlines: []Node{&Text{Value: "[x] 3. Also fine"}}}}}}},
		}},
	}}

	res := NewParser(Options{}, log.Discard()).Parse(doc)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "1", res.Tasks[0].Number)
	assert.Equal(t, "3", res.Tasks[1].Number)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrorTypeParse, res.Errors[0].Type)
	assert.Equal(t, 2, res.Errors[0].Line)
}

func TestParseFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/specs/auth/tasks.md", []byte("- [x] 1. Done\n"), 0o644))

	res, err := ParseFile(fs, "/specs/auth/tasks.md", Options{SpecName: "auth"}, log.Discard())
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.False(t, res.Tasks[0].CreatedAt.IsZero())

	_, err = ParseFile(fs, "/specs/missing/tasks.md", Options{}, log.Discard())
	assert.Error(t, err)
}

func TestFirstHeading(t *testing.T) {
	assert.Equal(t, "User Authentication", FirstHeading([]byte("Intro text\n\n# User Authentication\n\n## Details\n")))
	assert.Equal(t, "Setext Title", FirstHeading([]byte("Setext Title\n============\n")))
	assert.Equal(t, "", FirstHeading([]byte("no headings here\n")))
}

// Parsing never reports more completed tasks than tasks, and every accepted
// task has a well-formed number and a depth within the limit.
func TestParseInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "items")
		var b strings.Builder
		for i := 0; i < n; i++ {
			indent := strings.Repeat("  ", rapid.IntRange(0, 4).Draw(t, "indent"))
			mark := rapid.SampledFrom([]string{" ", "x", "X", "✓"}).Draw(t, "mark")
			numbered := rapid.Bool().Draw(t, "numbered")
			if numbered {
				fmt.Fprintf(&b, "%s- [%s] %d. Item %d\n", indent, mark, i+1, i)
			} else {
				fmt.Fprintf(&b, "%s- [%s] Item %d\n", indent, mark, i)
			}
		}

		res := NewParser(Options{}, log.Discard()).ParseSource([]byte(b.String()))
		total, completed := res.Counts()
		if completed > total {
			t.Fatalf("completed %d > total %d", completed, total)
		}
		for _, tk := range res.Tasks {
			if !numberFormat.MatchString(tk.Number) {
				t.Fatalf("accepted malformed number %q", tk.Number)
			}
			if tk.Metadata.Depth < 1 || tk.Metadata.Depth > DefaultMaxDepth {
				t.Fatalf("accepted depth %d", tk.Metadata.Depth)
			}
			if len(tk.Metadata.Hierarchy) >= tk.Metadata.Depth {
				t.Fatalf("hierarchy %d not shallower than depth %d", len(tk.Metadata.Hierarchy), tk.Metadata.Depth)
			}
		}
	})
}
