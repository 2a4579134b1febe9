package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/spec"
	"github.com/felixgeelhaar/speckeeper/internal/task"
	"github.com/felixgeelhaar/speckeeper/internal/ux"
)

func (a *app) newScanCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan and validate every spec",
		Long: `Scan discovers every spec under the specs directory, counts its tasks and
validates its layout. Specs that are complete and valid are ready to archive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			report, err := e.Scanner().ScanAndValidateAll()
			if err != nil {
				return err
			}
			specs, err := e.Scanner().ScanAll()
			if err != nil {
				return err
			}
			a.metrics.SetSpecCounts(report.TotalSpecs, len(report.CompleteSpecs), len(report.ReadySpecs), len(report.InvalidSpecs))

			view := scanView{Report: report, Specs: specs, SpecsDir: e.SpecsDir()}
			if len(specs) == 0 {
				view.Hint = ux.SuggestNextSteps(a.fs, e.SpecsDir())
			}
			if err := a.print(view); err != nil {
				return err
			}
			if strict && len(report.InvalidSpecs) > 0 {
				return errors.New(errors.ErrCodeSpecInvalid,
					fmt.Sprintf("%d of %d specs failed validation", len(report.InvalidSpecs), report.TotalSpecs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any spec is invalid")
	return cmd
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "status <spec>",
		Short:             "Show completion and validation for one spec",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.completeSpecNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			sp, err := a.findSpec(e.Scanner(), args[0])
			if err != nil {
				return err
			}
			v := e.Scanner().ValidateSpec(sp.Path)
			return a.print(statusView{Spec: sp, Validation: v, Ready: sp.IsComplete && v.Valid})
		},
	}
}

// findSpec returns the spec with cross-spec references resolved, which
// needs a full scan. A name the scan does not know is loaded directly so
// the caller gets a proper not-found error.
func (a *app) findSpec(sc *spec.Scanner, name string) (*spec.Spec, error) {
	specs, err := sc.ScanAll()
	if err != nil {
		return nil, err
	}
	for _, sp := range specs {
		if sp.Name == name {
			return sp, nil
		}
	}
	return sc.Load(name)
}

func (a *app) newTasksCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:               "tasks <spec>",
		Short:             "List the parsed tasks of a spec",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: a.completeSpecNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			if _, err := e.Scanner().Load(args[0]); err != nil {
				return err
			}
			res, err := e.Scanner().ParseTasks(args[0])
			if err != nil {
				return err
			}
			tasks := res.Tasks
			if pending {
				tasks = make([]*task.Task, 0, len(res.Tasks))
				for _, t := range res.Tasks {
					if !t.IsCompleted() {
						tasks = append(tasks, t)
					}
				}
			}
			return a.print(tasksView{SpecName: args[0], Tasks: tasks, Errors: res.Errors})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only show tasks that are not completed")
	return cmd
}
