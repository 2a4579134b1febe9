package ux

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by NewPrinter.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// View is a command result with a human-readable rendering. JSON and YAML
// output encode Payload instead.
type View interface {
	Render(s Styles) string
	Payload() any
}

type encodeFunc func(w io.Writer, v any) error

var encoders = map[string]encodeFunc{
	FormatJSON: func(w io.Writer, v any) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
	FormatYAML: func(w io.Writer, v any) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	},
}

// Printer writes command results to one writer in one format.
type Printer struct {
	w      io.Writer
	styles Styles
	encode encodeFunc // nil for text
}

// NewPrinter returns a Printer for format. An empty format means text.
func NewPrinter(format string, w io.Writer, noColor bool) (*Printer, error) {
	p := &Printer{w: w, styles: NewStyles(noColor)}
	switch format {
	case FormatText, "":
	default:
		enc, ok := encoders[format]
		if !ok {
			return nil, fmt.Errorf("unknown format: %s (supported: text, json, yaml)", format)
		}
		p.encode = enc
	}
	return p, nil
}

// Print writes data. Structured formats encode a View's Payload; text
// renders a View, a string or a fmt.Stringer and rejects anything else.
func (p *Printer) Print(data any) error {
	if p.encode != nil {
		if v, ok := data.(View); ok {
			data = v.Payload()
		}
		return p.encode(p.w, data)
	}

	var out string
	switch v := data.(type) {
	case View:
		out = v.Render(p.styles)
	case string:
		out = v
	case fmt.Stringer:
		out = v.String()
	default:
		return fmt.Errorf("cannot render %T as text", data)
	}
	_, err := fmt.Fprintln(p.w, out)
	return err
}
