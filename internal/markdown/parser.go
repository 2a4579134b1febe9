package markdown

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/task"
)

// DefaultMaxDepth is the deepest list nesting accepted for a task.
const DefaultMaxDepth = 3

// ErrorType classifies a ParseError.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation_error"
	ErrorTypeParse      ErrorType = "parse_error"
)

// ParseError describes a list item that looked like a task but was rejected.
type ParseError struct {
	Type     ErrorType `json:"type" yaml:"type"`
	Line     int       `json:"line" yaml:"line"`
	Message  string    `json:"message" yaml:"message"`
	TaskText string    `json:"taskText" yaml:"taskText"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Type, e.Message)
}

// Result is the outcome of parsing one tasks document. Tasks are in document
// order.
type Result struct {
	Tasks  []*task.Task `json:"tasks" yaml:"tasks"`
	Errors []ParseError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Counts returns the number of parsed tasks and how many are completed.
func (r *Result) Counts() (total, completed int) {
	for _, t := range r.Tasks {
		total++
		if t.IsCompleted() {
			completed++
		}
	}
	return total, completed
}

// Options configures a Parser.
type Options struct {
	// SpecName prefixes task IDs.
	SpecName string
	// MaxDepth caps list nesting; values below 1 mean DefaultMaxDepth.
	MaxDepth int
	// Now stamps CreatedAt/UpdatedAt and CompletedAt; zero means time.Now().
	Now time.Time
}

// Parser extracts tasks from a converted tasks document. A Parser holds no
// state between calls.
type Parser struct {
	opts   Options
	logger *log.Logger
}

// NewParser creates a parser. A nil logger uses the process default.
func NewParser(opts Options, logger *log.Logger) *Parser {
	if opts.MaxDepth < 1 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Parser{opts: opts, logger: log.OrDefault(logger)}
}

var (
	checkboxLine = regexp.MustCompile(`^\s*[-*+]?\s*\[( |x|X|✓)\]\s+(.*)$`)
	numberedRest = regexp.MustCompile(`^(\d[\d.]*)\.(?:\s+(.*))?$`)
	numberFormat = regexp.MustCompile(`^\d+(\.\d+)*$`)
	annotation   = regexp.MustCompile(`^\s*([A-Za-z]+)\s*:\s*(.*?)\s*$`)
)

// ParseSource converts src and parses it.
func (p *Parser) ParseSource(src []byte) Result {
	return p.Parse(Convert(src))
}

// ParseFile reads path from fs and parses it. The file's modification time
// stamps the tasks when opts.Now is zero.
func ParseFile(fs afero.Fs, path string, opts Options, logger *log.Logger) (Result, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	if opts.Now.IsZero() {
		if info, statErr := fs.Stat(path); statErr == nil {
			opts.Now = info.ModTime()
		}
	}
	return NewParser(opts, logger).ParseSource(data), nil
}

// Parse walks doc and returns every valid task plus a record for each
// rejected one.
func (p *Parser) Parse(doc *Document) Result {
	w := walk{parser: p, now: p.opts.Now}
	if w.now.IsZero() {
		w.now = time.Now()
	}
	w.blocks(doc.Children, 0, nil)
	if len(w.result.Errors) > 0 {
		p.logger.Debug("tasks document has rejected items", "spec", p.opts.SpecName, "errors", len(w.result.Errors))
	}
	return w.result
}

type walk struct {
	parser *Parser
	now    time.Time
	result Result
}

// blocks visits sibling blocks at the given list depth. ancestors is owned
// by the caller; each level appends to its own copy.
func (w *walk) blocks(nodes []Node, depth int, ancestors []*task.Task) {
	for _, n := range nodes {
		l, ok := n.(*List)
		if !ok {
			continue
		}
		style := task.ListStyle{Ordered: l.Ordered, Start: l.Start, Marker: string(l.Marker)}
		for _, item := range l.Items {
			w.item(item, depth+1, ancestors, style)
		}
	}
}

func (w *walk) item(item *ListItem, depth int, ancestors []*task.Task, style task.ListStyle) {
	defer func() {
		if r := recover(); r != nil {
			w.result.Errors = append(w.result.Errors, ParseError{
				Type:     ErrorTypeParse,
				Line:     item.Line,
				Message:  fmt.Sprintf("failed to process list item: %v", r),
				TaskText: itemText(item),
			})
		}
	}()

	head, ok := firstParagraph(item)
	if !ok {
		w.blocks(item.Children, depth, ancestors)
		return
	}
	titleLine := head.Lines[0]
	m := checkboxLine.FindStringSubmatch(titleLine.String())
	if m == nil {
		w.blocks(item.Children, depth, ancestors)
		return
	}
	rest := numberedRest.FindStringSubmatch(strings.TrimSpace(m[2]))
	if rest == nil {
		w.blocks(item.Children, depth, ancestors)
		return
	}
	number, title := rest[1], strings.TrimSpace(rest[2])

	if problems := validateTask(number, title, depth, w.parser.opts.MaxDepth); len(problems) > 0 {
		for _, msg := range problems {
			w.result.Errors = append(w.result.Errors, ParseError{
				Type:     ErrorTypeValidation,
				Line:     titleLine.Number,
				Message:  msg,
				TaskText: strings.TrimSpace(titleLine.String()),
			})
		}
		w.blocks(item.Children, depth, ancestors)
		return
	}

	t := w.newTask(number, title, m[1], titleLine.Number, depth, style, ancestors)
	w.applyBody(t, item)
	w.result.Tasks = append(w.result.Tasks, t)
	if len(ancestors) > 0 {
		parent := ancestors[len(ancestors)-1]
		parent.Metadata.Children = append(parent.Metadata.Children, t.Ref())
	}

	next := make([]*task.Task, len(ancestors), len(ancestors)+1)
	copy(next, ancestors)
	w.blocks(item.Children, depth, append(next, t))
}

func validateTask(number, title string, depth, maxDepth int) []string {
	var problems []string
	if number == "" {
		problems = append(problems, "task number is missing")
	} else if !numberFormat.MatchString(number) {
		problems = append(problems, fmt.Sprintf("task number %q is not in N(.N)* form", number))
	}
	if title == "" {
		problems = append(problems, "task title is missing")
	}
	if depth > maxDepth {
		problems = append(problems, fmt.Sprintf("task depth %d exceeds maximum %d", depth, maxDepth))
	}
	return problems
}

func (w *walk) newTask(number, title, mark string, line, depth int, style task.ListStyle, ancestors []*task.Task) *task.Task {
	t := &task.Task{
		ID:        task.MakeID(w.parser.opts.SpecName, number),
		Number:    number,
		Title:     title,
		SpecName:  w.parser.opts.SpecName,
		Line:      line,
		Status:    task.StatusPending,
		Priority:  task.DefaultPriority,
		CreatedAt: w.now,
		UpdatedAt: w.now,
		Metadata: task.Metadata{
			Depth:     depth,
			Hierarchy: make([]task.Ref, 0, len(ancestors)),
			ListStyle: style,
		},
	}
	if mark != " " {
		t.Status = task.StatusCompleted
		completed := w.now
		t.CompletedAt = &completed
	}
	for _, a := range ancestors {
		t.Metadata.Hierarchy = append(t.Metadata.Hierarchy, a.Ref())
	}
	if len(ancestors) > 0 {
		parent := ancestors[len(ancestors)-1].Ref()
		t.Metadata.Parent = &parent
	}
	return t
}

// applyBody reads description lines and annotations from the item's
// paragraphs after the title line, including those in nested bullets that
// are not tasks themselves.
func (w *walk) applyBody(t *task.Task, item *ListItem) {
	w.body(t, item.Children, true)

	t.Category = task.InferCategory(t.Title, t.Description)
	if t.Effort == "" {
		t.Effort = task.EstimateEffort(t.Description)
	}
}

func (w *walk) body(t *task.Task, nodes []Node, skipTitle bool) {
	for _, n := range nodes {
		switch v := n.(type) {
		case *Paragraph:
			lines := v.Lines
			if skipTitle {
				lines = lines[1:]
				skipTitle = false
			}
			for _, line := range lines {
				if !w.applyAnnotations(t, line) {
					if text := strings.TrimSpace(line.String()); text != "" {
						t.Description = append(t.Description, text)
					}
				}
			}
		case *List:
			// nested tasks own their subtree
			for _, sub := range v.Items {
				if !isTaskItem(sub) {
					w.body(t, sub.Children, false)
				}
			}
		}
	}
}

// applyAnnotations handles `_Key: value_` emphasis on a line and reports
// whether any known key was found.
func (w *walk) applyAnnotations(t *task.Task, line Line) bool {
	found := false
	for _, n := range line.Inlines {
		em, ok := n.(*Emphasis)
		if !ok {
			continue
		}
		m := annotation.FindStringSubmatch(PlainText(em.Children))
		if m == nil {
			continue
		}
		if w.setField(t, strings.ToLower(m[1]), m[2]) {
			found = true
		}
	}
	return found
}

func (w *walk) setField(t *task.Task, key, value string) bool {
	switch key {
	case "requirements", "requirement":
		t.Requirements = splitList(value)
	case "dependencies", "dependency", "depends":
		t.Dependencies = splitList(value)
	case "priority":
		p, err := task.NewPriority(value)
		if err != nil {
			w.parser.logger.Debug("ignoring priority annotation", "task", t.ID, "error", err)
			return true
		}
		t.Priority = p
	case "effort":
		t.Metadata.EffortNote = value
		if e, ok := task.ParseEffort(value); ok {
			t.Effort = e
		}
	case "assignee", "owner":
		t.Assignee = value
	case "tags", "tag":
		t.Metadata.Tags = splitList(value)
	case "notes", "note":
		t.Notes = splitOn(value, ";")
	default:
		return false
	}
	return true
}

func splitList(value string) []string {
	return splitOn(value, ",")
}

func splitOn(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstParagraph(item *ListItem) (*Paragraph, bool) {
	if len(item.Children) == 0 {
		return nil, false
	}
	p, ok := item.Children[0].(*Paragraph)
	if !ok || len(p.Lines) == 0 {
		return nil, false
	}
	return p, true
}

// isTaskItem reports whether item opens with a numbered checkbox line, valid
// or not.
func isTaskItem(item *ListItem) bool {
	head, ok := firstParagraph(item)
	if !ok {
		return false
	}
	m := checkboxLine.FindStringSubmatch(head.Lines[0].String())
	return m != nil && numberedRest.MatchString(strings.TrimSpace(m[2]))
}

func itemText(item *ListItem) string {
	if p, ok := firstParagraph(item); ok {
		return strings.TrimSpace(p.Lines[0].String())
	}
	return ""
}
