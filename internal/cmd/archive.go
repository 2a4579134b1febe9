package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/speckeeper/internal/archive"
	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

type archiveFlags struct {
	all    bool
	dryRun bool
	now    bool
}

func (a *app) newArchiveCmd() *cobra.Command {
	var f archiveFlags
	cmd := &cobra.Command{
		Use:   "archive [spec]",
		Short: "Archive completed specs",
		Long: `Archive moves a completed, valid spec into the archive directory.

With a spec name the archival policy decides whether the spec is archived now:
a disabled policy or an unexpired delay skips it. --now archives regardless of
the policy. With --all every spec that is ready is considered. Without either,
an interactive terminal offers the ready specs to choose from.`,
		Example: `  speckeeper archive auth
  speckeeper archive --all --dry-run
  speckeeper archive billing --now --yes`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: a.completeSpecNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.all && len(args) > 0 {
				return fmt.Errorf("invalid argument: pass a spec name or --all, not both")
			}
			e, err := a.engine()
			if err != nil {
				return err
			}
			if f.dryRun {
				return a.planArchive(cmd.Context(), e, args)
			}
			if len(args) == 1 {
				return a.archiveOne(cmd, e, args[0], f.now)
			}
			if f.all {
				return a.archiveAll(cmd, e, f.now)
			}
			return a.archiveSelected(cmd, e, f.now)
		},
	}
	cmd.Flags().BoolVar(&f.all, "all", false, "archive every spec that is ready")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "show what would be archived without changing anything")
	cmd.Flags().BoolVar(&f.now, "now", false, "ignore the archival policy's enabled flag and delay")
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (a *app) planArchive(ctx context.Context, e *archive.Engine, args []string) error {
	plan, err := e.PlanAutoArchive(ctx)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		name := args[0]
		if _, err := e.Scanner().Load(name); err != nil {
			return err
		}
		kept := []archive.Decision{}
		for _, d := range plan.Decisions {
			if d.SpecName == name {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			reason := "not complete"
			if issues, bad := plan.Report.Issues[name]; bad {
				reason = fmt.Sprintf("invalid: %v", issues)
			}
			kept = append(kept, archive.Decision{SpecName: name, Action: archive.ActionSkip, Reason: reason})
		}
		plan.Decisions = kept
	}
	return a.print(planView{plan})
}

func (a *app) archiveSpec(ctx context.Context, e *archive.Engine, name string, now bool) (*archive.Result, error) {
	if now {
		return e.ArchiveSpec(ctx, name)
	}
	return e.ArchiveSpecWithConfig(ctx, name)
}

func (a *app) archiveOne(cmd *cobra.Command, e *archive.Engine, name string, now bool) error {
	ok, err := a.confirm(cmd, fmt.Sprintf("Archive %s?", name),
		fmt.Sprintf("The spec directory is moved under %s.", e.ArchiveRoot()))
	if err != nil {
		return err
	}
	if !ok {
		return a.print("Cancelled.")
	}
	res, err := a.archiveSpec(cmd.Context(), e, name, now)
	if res == nil {
		return err
	}
	if perr := a.print(resultView{Result: res}); perr != nil && err == nil {
		return perr
	}
	return err
}

func (a *app) archiveAll(cmd *cobra.Command, e *archive.Engine, now bool) error {
	desc := "Specs still inside the archival delay are skipped."
	if now {
		desc = "The archival policy is ignored."
	}
	ok, err := a.confirm(cmd, "Archive every ready spec?", desc)
	if err != nil {
		return err
	}
	if !ok {
		return a.print("Cancelled.")
	}

	if !now {
		batch, err := e.AutoArchiveCompletedSpecs(cmd.Context())
		if err != nil {
			return err
		}
		return a.finishBatch(batch)
	}
	ready, err := e.Scanner().ReadyForArchival()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(ready))
	for _, sp := range ready {
		names = append(names, sp.Name)
	}
	batch, err := a.archiveNames(cmd, e, names, true)
	if err != nil {
		return err
	}
	return a.finishBatch(batch)
}

// archiveSelected lets the user pick from the ready specs.
func (a *app) archiveSelected(cmd *cobra.Command, e *archive.Engine, now bool) error {
	if !a.canPrompt() {
		return fmt.Errorf("requires at least 1 arg(s): pass a spec name or --all")
	}
	ready, err := e.Scanner().ReadyForArchival()
	if err != nil {
		return err
	}
	if len(ready) == 0 {
		return a.print("No specs ready for archival.")
	}
	options := make([]string, 0, len(ready))
	for _, sp := range ready {
		options = append(options, sp.Name)
	}
	names, err := a.prompter.MultiSelect("Select specs to archive", options)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return a.print("Nothing selected.")
	}
	batch, err := a.archiveNames(cmd, e, names, now)
	if err != nil {
		return err
	}
	return a.finishBatch(batch)
}

func (a *app) archiveNames(cmd *cobra.Command, e *archive.Engine, names []string, now bool) (*archive.BatchResult, error) {
	batch := &archive.BatchResult{Results: []*archive.Result{}}
	recovered, err := e.RecoverInterrupted(cmd.Context())
	if err != nil {
		a.logger.WithError(err).Warn("recovery of interrupted attempts failed")
	}
	batch.Recovered = recovered

	for _, name := range names {
		if err := cmd.Context().Err(); err != nil {
			return batch, err
		}
		res, err := a.archiveSpec(cmd.Context(), e, name, now)
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
	return batch, nil
}

func (a *app) finishBatch(batch *archive.BatchResult) error {
	if err := a.print(batchView{batch}); err != nil {
		return err
	}
	if batch.Failed > 0 {
		return errors.New(errors.ErrCodeArchiveRollback,
			fmt.Sprintf("%d of %d archivals failed and were rolled back", batch.Failed, len(batch.Results)))
	}
	return nil
}
