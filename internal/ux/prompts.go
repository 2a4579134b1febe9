package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
)

// Prompter asks the user questions. Commands take a Prompter so tests can
// answer without a terminal.
type Prompter interface {
	Confirm(title, description string, defaultYes bool) (bool, error)
	Select(title string, options []string) (string, error)
	MultiSelect(title string, options []string) ([]string, error)
}

// HuhPrompter renders prompts as huh forms.
type HuhPrompter struct {
	Accessible bool
}

// NewPrompter returns a huh prompter. Accessible mode, which reads plain
// lines from stdin, is used when noColor is set.
func NewPrompter(noColor bool) *HuhPrompter {
	return &HuhPrompter{Accessible: noColor}
}

func (p *HuhPrompter) run(field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).WithAccessible(p.Accessible)
	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// Confirm displays a yes/no confirmation prompt
func (p *HuhPrompter) Confirm(title, description string, defaultYes bool) (bool, error) {
	confirmed := defaultYes
	field := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&confirmed)
	if err := p.run(field); err != nil {
		return false, err
	}
	return confirmed, nil
}

// Select displays a selection prompt with multiple options
func (p *HuhPrompter) Select(title string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options provided")
	}
	var selected string
	field := huh.NewSelect[string]().
		Title(title).
		Options(huh.NewOptions(options...)...).
		Value(&selected)
	if err := p.run(field); err != nil {
		return "", err
	}
	return selected, nil
}

// MultiSelect displays a multi-selection prompt. Every option starts
// selected.
func (p *HuhPrompter) MultiSelect(title string, options []string) ([]string, error) {
	if len(options) == 0 {
		return nil, fmt.Errorf("no options provided")
	}
	opts := make([]huh.Option[string], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o, o).Selected(true)
	}
	var selected []string
	field := huh.NewMultiSelect[string]().
		Title(title).
		Options(opts...).
		Value(&selected)
	if err := p.run(field); err != nil {
		return nil, err
	}
	return selected, nil
}

var _ Prompter = (*HuhPrompter)(nil)

// ciEnvVars disable prompting when any of them is set.
var ciEnvVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"BUILDKITE",
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt reports whether prompts may be shown: never in CI, and only
// when stdin is a terminal.
func ShouldPrompt(getenv func(string) string, interactive bool) bool {
	for _, name := range ciEnvVars {
		if getenv(name) != "" {
			return false
		}
	}
	return interactive
}
