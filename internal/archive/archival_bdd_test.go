package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/completion"
	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/index"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/markdown"
)

// archivalBDDTestContext holds state shared by the steps of one scenario.
type archivalBDDTestContext struct {
	fs        afero.Fs
	engine    *Engine
	status    completion.Status
	parsed    markdown.Result
	result    *Result
	lastError error
}

func (c *archivalBDDTestContext) resetContext() {
	c.fs = afero.NewMemMapFs()
	c.engine = nil
	c.status = completion.Status{}
	c.parsed = markdown.Result{}
	c.result = nil
	c.lastError = nil
}

func (c *archivalBDDTestContext) anEmptyProject() error {
	c.resetContext()
	if err := c.fs.MkdirAll(specsDir, 0o755); err != nil {
		return err
	}
	e, err := New(c.fs, Paths{Root: projectRoot}, WithLogger(log.Discard()), WithClock(func() time.Time { return clock }))
	if err != nil {
		return err
	}
	c.engine = e
	return nil
}

func (c *archivalBDDTestContext) aSpecWithTasks(name string, doc *godog.DocString) error {
	dir := filepath.Join(specsDir, name)
	files := map[string]string{
		"requirements.md": "# " + name + "\n",
		"design.md":       "# Design\n",
		"tasks.md":        doc.Content + "\n",
	}
	for file, content := range files {
		p := filepath.Join(dir, file)
		if err := afero.WriteFile(c.fs, p, []byte(content), 0o644); err != nil {
			return err
		}
		if err := c.fs.Chtimes(p, clock.Add(-time.Hour), clock.Add(-time.Hour)); err != nil {
			return err
		}
	}
	return nil
}

func (c *archivalBDDTestContext) iCheckTheCompletionOf(name string) error {
	c.status = c.engine.Scanner().Detector().CheckCompletion(filepath.Join(specsDir, name))
	if !c.status.Found {
		return fmt.Errorf("no tasks document found for %s", name)
	}
	return nil
}

func (c *archivalBDDTestContext) theSpecHasTasksWithCompleted(total, completed int) error {
	if c.status.TotalTasks != total || c.status.CompletedTasks != completed {
		return fmt.Errorf("expected %d tasks with %d completed, got %d with %d",
			total, completed, c.status.TotalTasks, c.status.CompletedTasks)
	}
	return nil
}

func (c *archivalBDDTestContext) theCompletionPercentageIs(pct int) error {
	if c.status.Percentage != pct {
		return fmt.Errorf("expected %d%%, got %d%%", pct, c.status.Percentage)
	}
	return nil
}

func (c *archivalBDDTestContext) theSpecIsComplete() error {
	if !c.status.IsComplete {
		return fmt.Errorf("expected the spec to be complete (%d/%d)", c.status.CompletedTasks, c.status.TotalTasks)
	}
	return nil
}

func (c *archivalBDDTestContext) theSpecIsNotComplete() error {
	if c.status.IsComplete {
		return fmt.Errorf("expected the spec not to be complete")
	}
	return nil
}

func (c *archivalBDDTestContext) isReadyForArchival(name string) error {
	ready, err := c.engine.Scanner().ReadyForArchival()
	if err != nil {
		return err
	}
	for _, sp := range ready {
		if sp.Name == name {
			return nil
		}
	}
	return fmt.Errorf("%s is not ready for archival", name)
}

func (c *archivalBDDTestContext) iArchive(name string) error {
	c.result, c.lastError = c.engine.ArchiveSpec(context.Background(), name)
	return nil
}

func (c *archivalBDDTestContext) theArchivalSucceeds() error {
	if c.lastError != nil {
		return fmt.Errorf("archival failed: %w", c.lastError)
	}
	if c.result == nil || !c.result.Success {
		return fmt.Errorf("archival did not report success")
	}
	return nil
}

func (c *archivalBDDTestContext) theArchivalFailsWithAError(category string) error {
	if c.lastError == nil {
		return fmt.Errorf("expected archival to fail")
	}
	got, ok := errors.CategoryOf(c.lastError)
	if !ok || string(got) != category {
		return fmt.Errorf("expected a %s error, got %q (%v)", category, got, c.lastError)
	}
	return nil
}

func (c *archivalBDDTestContext) theArchiveDirectoryContains(name string, table *godog.Table) error {
	entries, err := afero.ReadDir(c.fs, filepath.Join(archiveDir, name))
	if err != nil {
		return err
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	sort.Strings(got)

	var want []string
	for _, row := range table.Rows[1:] {
		want = append(want, row.Cells[0].Value)
	}
	sort.Strings(want)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("archive contains %v, want %v", got, want)
	}
	return nil
}

func (c *archivalBDDTestContext) theSpecDirectoryNoLongerExists(name string) error {
	if ok, _ := afero.Exists(c.fs, filepath.Join(specsDir, name)); ok {
		return fmt.Errorf("%s still exists", name)
	}
	return nil
}

func (c *archivalBDDTestContext) theSpecDirectoryStillExists(name string) error {
	if ok, _ := afero.DirExists(c.fs, filepath.Join(specsDir, name)); !ok {
		return fmt.Errorf("%s was removed", name)
	}
	return nil
}

func (c *archivalBDDTestContext) theArchiveIndexHasEntryFor(count int, name string) error {
	entries, err := index.NewManager(c.fs, archiveDir, log.Discard()).Entries()
	if err != nil {
		return err
	}
	n := 0
	for _, e := range entries {
		if e.SpecName == name {
			n++
		}
	}
	if n != count || len(entries) != count {
		return fmt.Errorf("expected %d index entries for %s, got %d of %d", count, name, n, len(entries))
	}
	return nil
}

func (c *archivalBDDTestContext) theArchiveIndexIsEmpty() error {
	entries, err := index.NewManager(c.fs, archiveDir, log.Discard()).Entries()
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("expected an empty index, got %d entries", len(entries))
	}
	return nil
}

func (c *archivalBDDTestContext) iParseTheTasksOf(name string) error {
	res, err := c.engine.Scanner().ParseTasks(name)
	if err != nil {
		return err
	}
	c.parsed = res
	return nil
}

func (c *archivalBDDTestContext) taskReferencesRequirements(number, refs string) error {
	for _, t := range c.parsed.Tasks {
		if t.Number != number {
			continue
		}
		if got := strings.Join(t.Requirements, ", "); got != refs {
			return fmt.Errorf("task %s references %q, want %q", number, got, refs)
		}
		return nil
	}
	return fmt.Errorf("task %s not found", number)
}

// InitializeArchivalScenario registers the archival step definitions.
func InitializeArchivalScenario(ctx *godog.ScenarioContext) {
	testCtx := &archivalBDDTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		testCtx.resetContext()
		return ctx, nil
	})

	ctx.Step(`^an empty project$`, testCtx.anEmptyProject)
	ctx.Step(`^a spec "([^"]*)" with tasks:$`, testCtx.aSpecWithTasks)

	ctx.Step(`^I check the completion of "([^"]*)"$`, testCtx.iCheckTheCompletionOf)
	ctx.Step(`^the spec has (\d+) tasks with (\d+) completed$`, testCtx.theSpecHasTasksWithCompleted)
	ctx.Step(`^the completion percentage is (\d+)$`, testCtx.theCompletionPercentageIs)
	ctx.Step(`^the spec is complete$`, testCtx.theSpecIsComplete)
	ctx.Step(`^the spec is not complete$`, testCtx.theSpecIsNotComplete)
	ctx.Step(`^"([^"]*)" is ready for archival$`, testCtx.isReadyForArchival)

	ctx.Step(`^I archive "([^"]*)"$`, testCtx.iArchive)
	ctx.Step(`^the archival succeeds$`, testCtx.theArchivalSucceeds)
	ctx.Step(`^the archival fails with a "([^"]*)" error$`, testCtx.theArchivalFailsWithAError)
	ctx.Step(`^the archive directory "([^"]*)" contains:$`, testCtx.theArchiveDirectoryContains)
	ctx.Step(`^the spec directory "([^"]*)" no longer exists$`, testCtx.theSpecDirectoryNoLongerExists)
	ctx.Step(`^the spec directory "([^"]*)" still exists$`, testCtx.theSpecDirectoryStillExists)
	ctx.Step(`^the archive index has (\d+) entry for "([^"]*)"$`, testCtx.theArchiveIndexHasEntryFor)
	ctx.Step(`^the archive index is empty$`, testCtx.theArchiveIndexIsEmpty)

	ctx.Step(`^I parse the tasks of "([^"]*)"$`, testCtx.iParseTheTasksOf)
	ctx.Step(`^task "([^"]*)" references requirements "([^"]*)"$`, testCtx.taskReferencesRequirements)
}

// TestArchivalFeatures runs the archival BDD scenarios.
func TestArchivalFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeArchivalScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/archival.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
