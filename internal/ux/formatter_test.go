package ux

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type specCount struct {
	Name  string `json:"name" yaml:"name"`
	Tasks int    `json:"tasks" yaml:"tasks"`
}

type countView struct {
	Spec  string
	Count int
}

func (v countView) Render(s Styles) string {
	return s.Field(v.Spec, strconv.Itoa(v.Count))
}

func (v countView) Payload() any {
	return specCount{Name: v.Spec, Tasks: v.Count}
}

type stringer struct{}

func (stringer) String() string { return "from String" }

func printAs(t *testing.T, format string, data any) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	p, err := NewPrinter(format, &buf, true)
	require.NoError(t, err)
	err = p.Print(data)
	return buf.String(), err
}

func TestNewPrinterFormats(t *testing.T) {
	for _, format := range []string{FormatText, FormatJSON, FormatYAML, ""} {
		_, err := NewPrinter(format, &bytes.Buffer{}, false)
		assert.NoError(t, err, "format %q", format)
	}

	_, err := NewPrinter("xml", &bytes.Buffer{}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supported: text, json, yaml")
}

func TestPrintJSONEncodesPayload(t *testing.T) {
	out, err := printAs(t, FormatJSON, countView{Spec: "auth", Count: 3})
	require.NoError(t, err)

	var got specCount
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, specCount{Name: "auth", Tasks: 3}, got)
	assert.Contains(t, out, "\n  \"tasks\": 3", "expected two-space indentation")
}

func TestPrintYAMLEncodesPayload(t *testing.T) {
	out, err := printAs(t, FormatYAML, countView{Spec: "billing", Count: 12})
	require.NoError(t, err)

	var got specCount
	require.NoError(t, yaml.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, specCount{Name: "billing", Tasks: 12}, got)
	assert.NotContains(t, out, "Spec:")
}

func TestPrintStructuredPlainValues(t *testing.T) {
	out, err := printAs(t, FormatJSON, []string{"a", "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, out)
}

func TestPrintText(t *testing.T) {
	tests := []struct {
		name string
		data any
		want string
	}{
		{"string", "hello world", "hello world"},
		{"view", countView{Spec: "auth", Count: 3}, "auth: 3"},
		{"stringer", stringer{}, "from String"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := printAs(t, FormatText, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}

	_, err := printAs(t, FormatText, specCount{Name: "auth"})
	assert.Error(t, err, "plain structs have no text rendering")
}

func TestTable(t *testing.T) {
	out := NewStyles(true).Table(
		[]string{"SPEC", "TASKS"},
		[][]string{{"auth", "4"}, {"billing", "12"}},
	)
	for _, want := range []string{"SPEC", "TASKS", "auth", "billing", "12"} {
		assert.Contains(t, out, want)
	}
	assert.GreaterOrEqual(t, len(strings.Split(out, "\n")), 4, "header, separator and rows:\n%s", out)
}

func TestStylesCheck(t *testing.T) {
	s := NewStyles(true)
	assert.Equal(t, "✓", s.Check(true))
	assert.Equal(t, "✗", s.Check(false))
}
