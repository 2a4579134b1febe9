package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/speckeeper/internal/archive"
	"github.com/felixgeelhaar/speckeeper/internal/watch"
)

func (a *app) newWatchCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Archive specs automatically as they are completed",
		Long: `Watch runs an auto-archive pass on start, after tasks.md files change and on
a schedule. The schedule catches specs whose archival delay expires without
any file changing. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			d, err := watch.New(watch.Config{
				SpecsDir: e.SpecsDir(),
				Ignore:   []string{e.ArchiveRoot(), e.Journal().Dir()},
				Schedule: a.settings.Watch.Schedule,
				Debounce: a.settings.Watch.Debounce,
			}, a.watchPass(e), a.logger)
			if err != nil {
				return err
			}

			if once {
				return d.RunPass(cmd.Context(), watch.TriggerStartup)
			}
			if err := d.Run(cmd.Context()); err != nil {
				return err
			}
			st := d.Stats()
			return a.print(watchView{Passes: st.Passes, Failures: st.Failures, LastRun: st.LastRun})
		},
	}
	cmd.Flags().String("schedule", watch.DefaultSchedule, "cron schedule for periodic passes")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period after a tasks.md change")
	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

// watchPass runs one auto-archive pass and writes the metrics file after it.
func (a *app) watchPass(e *archive.Engine) watch.PassFunc {
	return func(ctx context.Context, trigger watch.Trigger) error {
		batch, err := e.AutoArchiveCompletedSpecs(ctx)
		a.flushMetrics()
		if err != nil {
			return err
		}
		for _, r := range batch.Results {
			if r.Success {
				a.logger.Info("archived spec", "spec", r.SpecName, "archive", r.ArchivePath, "trigger", string(trigger))
			}
		}
		if batch.Failed > 0 {
			return fmt.Errorf("%d of %d archivals failed", batch.Failed, len(batch.Results))
		}
		return nil
	}
}
