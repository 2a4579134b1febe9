package markdown

import (
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var engine = goldmark.New()

// Convert parses src as CommonMark and returns the simplified tree.
func Convert(src []byte) *Document {
	root := engine.Parser().Parse(text.NewReader(src))
	c := converter{src: src, lines: lineStarts(src)}
	return &Document{Children: c.blocks(root)}
}

// FirstHeading returns the text of the first heading in src, or "".
func FirstHeading(src []byte) string {
	for _, n := range Convert(src).Children {
		if h, ok := n.(*Heading); ok && h.Text != "" {
			return h.Text
		}
	}
	return ""
}

type converter struct {
	src   []byte
	lines []int
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf maps a byte offset to a 1-based line number.
func (c *converter) lineOf(offset int) int {
	return sort.Search(len(c.lines), func(i int) bool { return c.lines[i] > offset })
}

func (c *converter) blockLine(n ast.Node) int {
	if n.Type() == ast.TypeBlock {
		if segs := n.Lines(); segs != nil && segs.Len() > 0 {
			return c.lineOf(segs.At(0).Start)
		}
	}
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if child.Type() != ast.TypeBlock {
			continue
		}
		if line := c.blockLine(child); line > 0 {
			return line
		}
	}
	return 0
}

func (c *converter) blocks(parent ast.Node) []Node {
	var out []Node
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Heading:
			out = append(out, &Heading{
				Level: v.Level,
				Text:  strings.TrimSpace(PlainText(c.flatten(v))),
				Line:  c.blockLine(v),
			})
		case *ast.List:
			out = append(out, c.list(v))
		case *ast.Paragraph, *ast.TextBlock:
			out = append(out, c.paragraph(v))
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
			// not task content
		default:
			// containers such as block quotes contribute their children
			out = append(out, c.blocks(v)...)
		}
	}
	return out
}

func (c *converter) list(l *ast.List) *List {
	out := &List{
		Ordered: l.IsOrdered(),
		Marker:  l.Marker,
		Line:    c.blockLine(l),
	}
	if out.Ordered {
		out.Start = l.Start
	}
	for n := l.FirstChild(); n != nil; n = n.NextSibling() {
		item, ok := n.(*ast.ListItem)
		if !ok {
			continue
		}
		line := c.blockLine(item)
		if line == 0 {
			line = out.Line
		}
		out.Items = append(out.Items, &ListItem{Children: c.blocks(item), Line: line})
	}
	return out
}

func (c *converter) paragraph(p ast.Node) *Paragraph {
	segs := p.Lines()
	lineNo := func(i int) int {
		if segs == nil || segs.Len() == 0 {
			return 0
		}
		if i >= segs.Len() {
			i = segs.Len() - 1
		}
		return c.lineOf(segs.At(i).Start)
	}

	out := &Paragraph{Line: lineNo(0)}
	current := Line{Number: lineNo(0)}
	for n := p.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Text:
			current.Inlines = append(current.Inlines, &Text{Value: string(v.Segment.Value(c.src))})
			if v.SoftLineBreak() || v.HardLineBreak() {
				out.Lines = append(out.Lines, current)
				current = Line{Number: lineNo(len(out.Lines))}
			}
		case *ast.Emphasis:
			current.Inlines = append(current.Inlines, &Emphasis{Level: v.Level, Children: c.flatten(v)})
		default:
			current.Inlines = append(current.Inlines, c.inline(v)...)
		}
	}
	if len(current.Inlines) > 0 {
		out.Lines = append(out.Lines, current)
	}
	return out
}

// flatten converts the inline children of n. Line breaks inside a nested
// inline become spaces.
func (c *converter) flatten(n ast.Node) []Node {
	var out []Node
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		out = append(out, c.inline(child)...)
	}
	return out
}

func (c *converter) inline(n ast.Node) []Node {
	switch v := n.(type) {
	case *ast.Text:
		value := string(v.Segment.Value(c.src))
		if v.SoftLineBreak() || v.HardLineBreak() {
			value += " "
		}
		return []Node{&Text{Value: value}}
	case *ast.String:
		return []Node{&Text{Value: string(v.Value)}}
	case *ast.Emphasis:
		return []Node{&Emphasis{Level: v.Level, Children: c.flatten(v)}}
	case *ast.AutoLink:
		return []Node{&Text{Value: string(v.Label(c.src))}}
	case *ast.RawHTML:
		var b strings.Builder
		for i := 0; i < v.Segments.Len(); i++ {
			seg := v.Segments.At(i)
			b.Write(seg.Value(c.src))
		}
		return []Node{&Text{Value: b.String()}}
	default:
		return c.flatten(v)
	}
}
