package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/speckeeper/internal/archive"
	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/index"
	"github.com/felixgeelhaar/speckeeper/internal/markdown"
	"github.com/felixgeelhaar/speckeeper/internal/spec"
	"github.com/felixgeelhaar/speckeeper/internal/task"
	"github.com/felixgeelhaar/speckeeper/internal/ux"
	"github.com/felixgeelhaar/speckeeper/internal/version"
)

const dateLayout = "2006-01-02 15:04"

func plural(n int, word string) string {
	switch {
	case n == 1:
		return fmt.Sprintf("%d %s", n, word)
	case strings.HasSuffix(word, "s"):
		return fmt.Sprintf("%d %ses", n, word)
	default:
		return fmt.Sprintf("%d %ss", n, word)
	}
}

func writeList(b *strings.Builder, s ux.Styles, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + s.Header.Render(title) + "\n")
	for _, it := range items {
		b.WriteString("  " + it + "\n")
	}
}

func progress(s ux.Styles, completed, total, pct int) string {
	const width = 20
	filled := pct * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	style := s.Warning
	if completed == total && total > 0 {
		style = s.Success
	}
	return fmt.Sprintf("%s %d/%d (%d%%)", style.Render(bar), completed, total, pct)
}

// scanView is the result of `speckeeper scan`.
type scanView struct {
	Report   *spec.Report `json:"report" yaml:"report"`
	Specs    []*spec.Spec `json:"specs" yaml:"specs"`
	SpecsDir string       `json:"specsDir" yaml:"specsDir"`
	Hint     string       `json:"hint,omitempty" yaml:"hint,omitempty"`
}

func (v scanView) Payload() any { return v }

func (v scanView) state(name string) string {
	for _, n := range v.Report.ReadySpecs {
		if n == name {
			return "ready"
		}
	}
	if _, bad := v.Report.Issues[name]; bad {
		return "invalid"
	}
	for _, n := range v.Report.CompleteSpecs {
		if n == name {
			return "complete"
		}
	}
	return "in progress"
}

func (v scanView) Render(s ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("Specs in "+v.SpecsDir) + "\n")
	if len(v.Specs) == 0 {
		b.WriteString("\nNo specs found.\n")
		if v.Hint != "" {
			b.WriteString(s.Muted.Render(v.Hint) + "\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}

	rows := make([][]string, 0, len(v.Specs))
	for _, sp := range v.Specs {
		state := v.state(sp.Name)
		switch state {
		case "ready":
			state = s.Success.Render(state)
		case "invalid":
			state = s.Error.Render(state)
		}
		rows = append(rows, []string{
			sp.Name,
			fmt.Sprintf("%d/%d", sp.CompletedTasks, sp.TotalTasks),
			strconv.Itoa(sp.Percentage) + "%",
			state,
		})
	}
	b.WriteString(s.Table([]string{"SPEC", "TASKS", "DONE", "STATE"}, rows) + "\n")

	names := make([]string, 0, len(v.Report.Issues))
	for name := range v.Report.Issues {
		names = append(names, name)
	}
	sort.Strings(names)
	var issues []string
	for _, name := range names {
		for _, issue := range v.Report.Issues[name] {
			issues = append(issues, s.Error.Render(name)+": "+issue)
		}
	}
	writeList(&b, s, "Issues", issues)

	b.WriteString(fmt.Sprintf("\n%s, %d ready to archive, %d invalid",
		plural(v.Report.TotalSpecs, "spec"), len(v.Report.ReadySpecs), len(v.Report.InvalidSpecs)))
	return b.String()
}

// statusView is the result of `speckeeper status`.
type statusView struct {
	Spec       *spec.Spec            `json:"spec" yaml:"spec"`
	Validation spec.ValidationResult `json:"validation" yaml:"validation"`
	Ready      bool                  `json:"readyForArchival" yaml:"readyForArchival"`
}

func (v statusView) Payload() any { return v }

func (v statusView) Render(s ux.Styles) string {
	sp := v.Spec
	var b strings.Builder
	b.WriteString(s.Title.Render(sp.Title) + s.Muted.Render(" ("+sp.Name+")") + "\n\n")
	b.WriteString(s.Field("Path", sp.Path) + "\n")
	b.WriteString(s.Field("Progress", progress(s, sp.CompletedTasks, sp.TotalTasks, sp.Percentage)) + "\n")
	b.WriteString(s.Field("Complete", s.Check(sp.IsComplete)) + "\n")
	b.WriteString(s.Field("Valid", s.Check(v.Validation.Valid)) + "\n")
	if !sp.LastModified.IsZero() {
		b.WriteString(s.Field("Last modified", sp.LastModified.Local().Format(dateLayout)) + "\n")
	}
	if len(sp.Dependencies) > 0 {
		b.WriteString(s.Field("Depends on", strings.Join(sp.Dependencies, ", ")) + "\n")
	}
	if len(sp.Dependents) > 0 {
		b.WriteString(s.Field("Needed by", strings.Join(sp.Dependents, ", ")) + "\n")
	}
	writeList(&b, s, "Issues", v.Validation.Issues)
	writeList(&b, s, "Warnings", v.Validation.Warnings)
	if v.Ready {
		b.WriteString("\n" + s.Success.Render("Ready for archival"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// tasksView is the result of `speckeeper tasks`.
type tasksView struct {
	SpecName string                `json:"specName" yaml:"specName"`
	Tasks    []*task.Task          `json:"tasks" yaml:"tasks"`
	Errors   []markdown.ParseError `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func (v tasksView) Payload() any { return v }

func (v tasksView) Render(s ux.Styles) string {
	var b strings.Builder
	done := 0
	for _, t := range v.Tasks {
		if t.IsCompleted() {
			done++
		}
	}
	b.WriteString(s.Title.Render("Tasks for "+v.SpecName) + s.Muted.Render(fmt.Sprintf(" (%d/%d done)", done, len(v.Tasks))) + "\n\n")
	for _, t := range v.Tasks {
		mark := "[ ]"
		if t.IsCompleted() {
			mark = s.Success.Render("[x]")
		}
		line := strings.Repeat("  ", max(t.Metadata.Depth-1, 0)) + mark + " " + s.Code.Render(t.Number) + " " + t.Title
		var attrs []string
		if t.Priority != "" && t.Priority != task.PriorityMedium {
			attrs = append(attrs, string(t.Priority))
		}
		if len(t.Requirements) > 0 {
			attrs = append(attrs, "req "+strings.Join(t.Requirements, ","))
		}
		if len(t.Dependencies) > 0 {
			attrs = append(attrs, "after "+strings.Join(t.Dependencies, ","))
		}
		if len(attrs) > 0 {
			line += " " + s.Muted.Render("("+strings.Join(attrs, "; ")+")")
		}
		b.WriteString(line + "\n")
	}
	if len(v.Tasks) == 0 {
		b.WriteString("No tasks found.\n")
	}
	var errs []string
	for _, e := range v.Errors {
		errs = append(errs, s.Error.Render(e.Error()))
	}
	writeList(&b, s, "Parse errors", errs)
	return strings.TrimRight(b.String(), "\n")
}

func renderResult(b *strings.Builder, s ux.Styles, r *archive.Result, restored bool) {
	switch {
	case r.Success && restored:
		b.WriteString(s.Success.Render("✓ ") + r.SpecName + " restored to " + r.SourcePath)
	case r.Success:
		b.WriteString(s.Success.Render("✓ ") + r.SpecName + " → " + r.ArchivePath)
		if r.FilesCopied > 0 {
			b.WriteString(s.Muted.Render(fmt.Sprintf(" (%s, %d bytes)", plural(r.FilesCopied, "file"), r.BytesCopied)))
		}
	case r.Skipped:
		b.WriteString(s.Warning.Render("- ") + r.SpecName + s.Muted.Render(": "+r.Reason))
	default:
		b.WriteString(s.Error.Render("✗ ") + r.SpecName + ": " + r.Error)
		if r.Phase != "" {
			b.WriteString(s.Muted.Render(" (phase " + string(r.Phase) + ")"))
		}
		for _, issue := range r.Issues {
			b.WriteString("\n    " + issue)
		}
	}
	for _, w := range r.Warnings {
		b.WriteString("\n    " + s.Warning.Render("warning: ") + w)
	}
	b.WriteString("\n")
}

// resultView renders a single archive or restore attempt.
type resultView struct {
	*archive.Result
	Restored bool
}

func (v resultView) Payload() any { return v.Result }

func (v resultView) Render(s ux.Styles) string {
	var b strings.Builder
	renderResult(&b, s, v.Result, v.Restored)
	return strings.TrimRight(b.String(), "\n")
}

// batchView renders several archive attempts.
type batchView struct {
	*archive.BatchResult
}

func (v batchView) Payload() any { return v.BatchResult }

func (v batchView) Render(s ux.Styles) string {
	var b strings.Builder
	if len(v.Recovered) > 0 {
		b.WriteString(recoveryView(v.Recovered).Render(s) + "\n\n")
	}
	for _, r := range v.Results {
		renderResult(&b, s, r, false)
	}
	if len(v.Results) == 0 {
		b.WriteString("No specs ready for archival.\n")
	}
	b.WriteString(fmt.Sprintf("\n%d archived, %d skipped, %d failed", v.Archived, v.Skipped, v.Failed))
	return b.String()
}

// planView renders a dry run.
type planView struct {
	*archive.Plan
}

func (v planView) Payload() any { return v.Plan }

func (v planView) Render(s ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Title.Render("Dry run") + s.Muted.Render(" (nothing is changed)") + "\n\n")
	policy := "disabled"
	if v.Policy.Enabled {
		policy = fmt.Sprintf("enabled, delay %dm, verification %s", v.Policy.DelayMinutes, v.Policy.Verification)
	}
	b.WriteString(s.Field("Policy", policy) + "\n")
	b.WriteString(s.Field("Archive root", v.ArchiveRoot) + "\n\n")
	if len(v.Decisions) == 0 {
		b.WriteString("No complete specs.")
		return b.String()
	}
	for _, d := range v.Decisions {
		switch d.Action {
		case archive.ActionArchive:
			b.WriteString(s.Success.Render("archive ") + d.SpecName + " → " + d.Destination + "\n")
		case archive.ActionWait:
			b.WriteString(s.Warning.Render("wait    ") + d.SpecName + s.Muted.Render(fmt.Sprintf(": %s left (%s)", d.Remaining, d.Reason)) + "\n")
		default:
			b.WriteString(s.Muted.Render("skip    ") + d.SpecName + s.Muted.Render(": "+d.Reason) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// entriesView renders index entries as a table.
type entriesView []index.Entry

func (v entriesView) Payload() any { return []index.Entry(v) }

func (v entriesView) Render(s ux.Styles) string {
	if len(v) == 0 {
		return "No archived specs."
	}
	rows := make([][]string, 0, len(v))
	for _, e := range v {
		rows = append(rows, []string{
			e.SpecName,
			e.ArchivalDate.Local().Format(dateLayout),
			strconv.Itoa(e.TotalTasks),
			e.ArchivePath,
		})
	}
	return s.Table([]string{"SPEC", "ARCHIVED", "TASKS", "PATH"}, rows)
}

type statsView index.Stats

func (v statsView) Payload() any { return index.Stats(v) }

func (v statsView) Render(s ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Field("Archived specs", strconv.Itoa(v.TotalArchives)) + "\n")
	b.WriteString(s.Field("Archived tasks", strconv.Itoa(v.TotalTasks)))
	if v.Oldest != nil {
		b.WriteString("\n" + s.Field("Oldest", v.Oldest.Local().Format(dateLayout)))
	}
	if v.Newest != nil {
		b.WriteString("\n" + s.Field("Newest", v.Newest.Local().Format(dateLayout)))
	}
	return b.String()
}

type repairView index.RepairResult

func (v repairView) Payload() any { return index.RepairResult(v) }

func (v repairView) Render(s ux.Styles) string {
	if v.IsValid {
		return s.Success.Render("✓ ") + "archive index is valid"
	}
	var b strings.Builder
	b.WriteString(s.Warning.Render("Repaired archive index") +
		s.Muted.Render(fmt.Sprintf(" (%d duplicate, %d missing)", v.DuplicatesRemoved, v.MissingRemoved)) + "\n")
	for _, issue := range v.Issues {
		b.WriteString("  " + issue + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

type reconcileView struct {
	*archive.ReconcileReport
}

func (v reconcileView) Payload() any { return v.ReconcileReport }

func (v reconcileView) Render(s ux.Styles) string {
	var b strings.Builder
	verb := func(done, planned string) string {
		if v.DryRun {
			return planned
		}
		return done
	}
	if v.DryRun {
		b.WriteString(s.Title.Render("Dry run") + s.Muted.Render(" (nothing is changed)") + "\n")
	}
	writeList(&b, s, verb("Re-indexed", "Would re-index"), v.Reindexed)
	writeList(&b, s, verb("Removed partial archives", "Would remove partial archives"), v.RemovedPartial)
	writeList(&b, s, "Left alone (attempt in progress)", v.InProgress)
	writeList(&b, s, verb("Dropped stale index entries", "Would drop stale index entries"), v.StaleEntries)
	if b.Len() == 0 || (v.DryRun && len(v.Reindexed)+len(v.RemovedPartial)+len(v.InProgress)+len(v.StaleEntries) == 0) {
		b.WriteString(s.Success.Render("✓ ") + "archive directory and index agree")
	}
	return strings.TrimLeft(strings.TrimRight(b.String(), "\n"), "\n")
}

type recoveryView []archive.RecoveryAction

func (v recoveryView) Payload() any { return []archive.RecoveryAction(v) }

func (v recoveryView) Render(s ux.Styles) string {
	if len(v) == 0 {
		return "No interrupted attempts."
	}
	var b strings.Builder
	b.WriteString(s.Header.Render("Recovered interrupted attempts") + "\n")
	for _, r := range v {
		line := fmt.Sprintf("  %s %s %s: %s", r.AttemptID, r.Operation, r.SpecName, r.Outcome)
		if r.Detail != "" {
			line += s.Muted.Render(" (" + r.Detail + ")")
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// configView renders the archival policy.
type configView struct {
	Path     string                `json:"path" yaml:"path"`
	Config   config.ArchivalConfig `json:"config" yaml:"config"`
	Warnings []string              `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Note     string                `json:"note,omitempty" yaml:"note,omitempty"`
}

func (v configView) Payload() any { return v }

func (v configView) Render(s ux.Styles) string {
	var b strings.Builder
	b.WriteString(s.Field("File", v.Path) + "\n")
	b.WriteString(s.Field("enabled", strconv.FormatBool(v.Config.Enabled)) + "\n")
	b.WriteString(s.Field("delayMinutes", strconv.Itoa(v.Config.DelayMinutes)) + s.Muted.Render(" ("+v.Config.Delay().String()+")") + "\n")
	b.WriteString(s.Field("location", v.Config.Location) + "\n")
	b.WriteString(s.Field("verification", string(v.Config.Verification)) + "\n")
	b.WriteString(s.Field("version", strconv.Itoa(v.Config.Version)) + "\n")
	writeList(&b, s, "Warnings", v.Warnings)
	if v.Note != "" {
		b.WriteString("\n" + s.Success.Render(v.Note))
	}
	return strings.TrimRight(b.String(), "\n")
}

// validateView is the result of `speckeeper config validate`.
type validateView struct {
	Path     string   `json:"path" yaml:"path"`
	Exists   bool     `json:"exists" yaml:"exists"`
	Valid    bool     `json:"valid" yaml:"valid"`
	Problems []string `json:"problems,omitempty" yaml:"problems,omitempty"`
	Pending  []string `json:"pendingMigrations,omitempty" yaml:"pendingMigrations,omitempty"`
}

func (v validateView) Payload() any { return v }

func (v validateView) Render(s ux.Styles) string {
	var b strings.Builder
	switch {
	case !v.Exists:
		b.WriteString(s.Warning.Render("- ") + v.Path + " does not exist; defaults apply")
	case v.Valid:
		b.WriteString(s.Success.Render("✓ ") + v.Path + " is valid")
	default:
		b.WriteString(s.Error.Render("✗ ") + v.Path + " is invalid")
	}
	b.WriteString("\n")
	writeList(&b, s, "Problems", v.Problems)
	writeList(&b, s, "Changes 'config migrate' would make", v.Pending)
	return strings.TrimRight(b.String(), "\n")
}

type versionView struct {
	version.Info
	Verbose bool `json:"-" yaml:"-"`
}

func (v versionView) Payload() any { return v.Info }

func (v versionView) Render(s ux.Styles) string {
	if v.Verbose {
		return v.Info.String()
	}
	return version.Name + " " + v.Short()
}

// watchView summarizes a finished watch session.
type watchView struct {
	Passes   int       `json:"passes" yaml:"passes"`
	Failures int       `json:"failures" yaml:"failures"`
	LastRun  time.Time `json:"lastRun,omitempty" yaml:"lastRun,omitempty"`
}

func (v watchView) Payload() any { return v }

func (v watchView) Render(s ux.Styles) string {
	return fmt.Sprintf("Stopped after %s, %s", plural(v.Passes, "pass"), plural(v.Failures, "failure"))
}
