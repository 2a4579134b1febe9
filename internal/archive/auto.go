package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/speckeeper/internal/checkpoint"
	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/index"
	"github.com/felixgeelhaar/speckeeper/internal/metrics"
	"github.com/felixgeelhaar/speckeeper/internal/spec"
)

// Actions a plan can propose for a spec.
const (
	ActionArchive = "archive"
	ActionWait    = "wait"
	ActionSkip    = "skip"
)

// Decision is what ArchiveSpecWithConfig would do for one spec.
// Remaining is set for ActionWait.
type Decision struct {
	SpecName    string        `json:"specName" yaml:"specName"`
	Action      string        `json:"action" yaml:"action"`
	Reason      string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Destination string        `json:"destination,omitempty" yaml:"destination,omitempty"`
	Remaining   time.Duration `json:"remaining,omitempty" yaml:"remaining,omitempty"`
}

// decide applies the policy to a loaded, complete spec.
func (e *Engine) decide(cfg config.ArchivalConfig, sp *spec.Spec) Decision {
	d := Decision{SpecName: sp.Name}
	if !cfg.Enabled {
		d.Action, d.Reason = ActionSkip, "automatic archival is disabled"
		return d
	}
	if !sp.IsComplete {
		d.Action, d.Reason = ActionSkip, fmt.Sprintf("%d of %d tasks complete", sp.CompletedTasks, sp.TotalTasks)
		return d
	}
	elapsed := e.now().Sub(sp.LastModified)
	if delay := cfg.Delay(); elapsed < delay {
		d.Action = ActionWait
		d.Remaining = (delay - elapsed).Round(time.Second)
		d.Reason = fmt.Sprintf("completed %s ago, archival delay is %s", elapsed.Round(time.Second), delay)
		return d
	}
	d.Action = ActionArchive
	return d
}

// ArchiveSpecWithConfig archives the spec if the policy allows it. A disabled
// policy or an unexpired delay yields a skipped result, not an error.
func (e *Engine) ArchiveSpecWithConfig(ctx context.Context, name string) (*Result, error) {
	res := &Result{SpecName: name, Phase: checkpoint.PhasePending}
	cfg := e.policy(res)

	if !cfg.Enabled {
		return e.skip(res, "automatic archival is disabled"), nil
	}
	sp, err := e.specs.Load(name)
	if err != nil {
		return res, res.fail(err)
	}
	if sp.IsComplete {
		if d := e.decide(cfg, sp); d.Action == ActionWait {
			return e.skip(res, d.Reason), nil
		}
	}
	return e.ArchiveSpec(ctx, name)
}

func (e *Engine) skip(res *Result, reason string) *Result {
	res.Skipped = true
	res.Reason = reason
	e.metrics.ObserveAttempt(metrics.OutcomeSkipped, 0)
	e.logger.Debug("archival skipped", "spec", res.SpecName, "reason", reason)
	return res
}

// BatchResult collects the outcome of an auto-archive pass.
type BatchResult struct {
	Results   []*Result        `json:"results" yaml:"results"`
	Recovered []RecoveryAction `json:"recovered,omitempty" yaml:"recovered,omitempty"`
	Archived  int              `json:"archived" yaml:"archived"`
	Skipped   int              `json:"skipped" yaml:"skipped"`
	Failed    int              `json:"failed" yaml:"failed"`
}

// AutoArchiveCompletedSpecs finishes interrupted attempts, then runs
// ArchiveSpecWithConfig for every spec that is complete and valid. A failure
// for one spec does not stop the others; the returned error is only set when
// the specs directory cannot be scanned or ctx is cancelled.
func (e *Engine) AutoArchiveCompletedSpecs(ctx context.Context) (*BatchResult, error) {
	batch := &BatchResult{Results: []*Result{}}

	recovered, err := e.RecoverInterrupted(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("recovery of interrupted attempts failed")
	}
	batch.Recovered = recovered

	ready, err := e.specs.ReadyForArchival()
	if err != nil {
		return batch, err
	}
	for _, sp := range ready {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res, err := e.ArchiveSpecWithConfig(ctx, sp.Name)
		batch.Results = append(batch.Results, res)
		switch {
		case err != nil:
			batch.Failed++
		case res.Skipped:
			batch.Skipped++
		default:
			batch.Archived++
		}
	}
	e.logger.Info("auto-archive pass finished",
		"archived", batch.Archived, "skipped", batch.Skipped, "failed", batch.Failed)
	return batch, nil
}

// Plan is a dry run of AutoArchiveCompletedSpecs.
type Plan struct {
	Report      *spec.Report          `json:"report" yaml:"report"`
	Policy      config.ArchivalConfig `json:"policy" yaml:"policy"`
	ArchiveRoot string                `json:"archiveRoot" yaml:"archiveRoot"`
	Decisions   []Decision            `json:"decisions" yaml:"decisions"`
}

// PlanAutoArchive reports what an auto-archive pass would do without
// touching the filesystem beyond reading it.
func (e *Engine) PlanAutoArchive(ctx context.Context) (*Plan, error) {
	report, err := e.specs.ScanAndValidateAll()
	if err != nil {
		return nil, err
	}
	e.metrics.SetSpecCounts(report.TotalSpecs, len(report.CompleteSpecs), len(report.ReadySpecs), len(report.InvalidSpecs))

	var scratch Result
	plan := &Plan{Report: report, Policy: e.policy(&scratch), ArchiveRoot: e.archiveRoot, Decisions: []Decision{}}
	for _, name := range report.ReadySpecs {
		if err := ctx.Err(); err != nil {
			return plan, err
		}
		sp, err := e.specs.Load(name)
		if err != nil {
			plan.Decisions = append(plan.Decisions, Decision{SpecName: name, Action: ActionSkip, Reason: err.Error()})
			continue
		}
		d := e.decide(plan.Policy, sp)
		if d.Action == ActionArchive {
			d.Destination = e.destination(name, e.now())
		}
		plan.Decisions = append(plan.Decisions, d)
	}
	for _, name := range report.CompleteSpecs {
		if _, bad := report.Issues[name]; bad {
			plan.Decisions = append(plan.Decisions, Decision{SpecName: name, Action: ActionSkip, Reason: "complete but invalid"})
		}
	}
	return plan, nil
}

// ArchivedSpecs lists the index, newest first.
func (e *Engine) ArchivedSpecs() ([]index.Entry, error) {
	return e.index.Entries()
}

// SearchArchivedSpecs matches spec names case-insensitively.
func (e *Engine) SearchArchivedSpecs(term string) ([]index.Entry, error) {
	return e.index.Search(term)
}

// ArchiveStats summarizes the index.
func (e *Engine) ArchiveStats() (index.Stats, error) {
	return e.index.Stats()
}

// ValidateAndRepairArchiveIndex drops duplicate and dangling index entries.
func (e *Engine) ValidateAndRepairArchiveIndex() (index.RepairResult, error) {
	res, err := e.index.ValidateAndRepair()
	if err != nil {
		return res, err
	}
	e.metrics.ObserveRepair(res.DuplicatesRemoved, res.MissingRemoved)
	return res, nil
}
