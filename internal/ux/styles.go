package ux

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles used by text output.
type Styles struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Code    lipgloss.Style
}

// NewStyles returns the default palette. With noColor every style renders
// its input unchanged.
func NewStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{
			Title:   plain,
			Header:  plain,
			Label:   plain,
			Muted:   plain,
			Success: plain,
			Warning: plain,
			Error:   plain,
			Code:    plain,
		}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Code:    lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
	}
}

// Field renders "label: value" with the label muted.
func (s Styles) Field(label, value string) string {
	return s.Label.Render(label+":") + " " + value
}

// Check renders a status mark for ok.
func (s Styles) Check(ok bool) string {
	if ok {
		return s.Success.Render("✓")
	}
	return s.Error.Render("✗")
}
