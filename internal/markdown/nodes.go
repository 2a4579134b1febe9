// Package markdown converts tasks documents into a small typed tree and
// extracts hierarchical checklist tasks from it.
package markdown

// Node is one element of the simplified document tree. Block nodes are
// Document, Heading, List, ListItem and Paragraph; inline nodes are Text and
// Emphasis.
type Node interface {
	node()
}

// Document is the root of a converted tasks document.
type Document struct {
	Children []Node
}

// Heading is an ATX or setext heading with its flattened text.
type Heading struct {
	Level int
	Text  string
	Line  int
}

// List is an ordered or bullet list.
type List struct {
	Ordered bool
	// Start is the first number of an ordered list.
	Start int
	// Marker is '-', '*', '+' for bullet lists and '.' or ')' for ordered ones.
	Marker byte
	Items  []*ListItem
	Line   int
}

// ListItem holds the blocks nested in one list entry.
type ListItem struct {
	Children []Node
	Line     int
}

// Paragraph is a run of text split into source lines at soft and hard breaks.
type Paragraph struct {
	Lines []Line
	Line  int
}

// Line is one source line of a paragraph.
type Line struct {
	Inlines []Node
	Number  int
}

// Text is literal inline content.
type Text struct {
	Value string
}

// Emphasis is `_x_`, `*x*` (level 1) or `__x__`, `**x**` (level 2).
type Emphasis struct {
	Level    int
	Children []Node
}

func (*Document) node()  {}
func (*Heading) node()   {}
func (*List) node()      {}
func (*ListItem) node()  {}
func (*Paragraph) node() {}
func (*Text) node()      {}
func (*Emphasis) node()  {}

// PlainText flattens inline nodes into a string, dropping emphasis markers.
func PlainText(inlines []Node) string {
	var b []byte
	for _, n := range inlines {
		switch v := n.(type) {
		case *Text:
			b = append(b, v.Value...)
		case *Emphasis:
			b = append(b, PlainText(v.Children)...)
		}
	}
	return string(b)
}

// String returns the line's plain text.
func (l Line) String() string {
	return PlainText(l.Inlines)
}
