package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newArchivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "archives",
		Aliases: []string{"archived"},
		Short:   "Inspect and maintain archived specs",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List archived specs, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := a.engine()
				if err != nil {
					return err
				}
				entries, err := e.ArchivedSpecs()
				if err != nil {
					return err
				}
				return a.print(entriesView(entries))
			},
		},
		&cobra.Command{
			Use:   "search <term>",
			Short: "Find archived specs whose name contains term",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, err := a.engine()
				if err != nil {
					return err
				}
				entries, err := e.SearchArchivedSpecs(args[0])
				if err != nil {
					return err
				}
				return a.print(entriesView(entries))
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Summarize the archive index",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := a.engine()
				if err != nil {
					return err
				}
				st, err := e.ArchiveStats()
				if err != nil {
					return err
				}
				return a.print(statsView(st))
			},
		},
		&cobra.Command{
			Use:   "repair",
			Short: "Drop duplicate and dangling index entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := a.engine()
				if err != nil {
					return err
				}
				res, err := e.ValidateAndRepairArchiveIndex()
				if err != nil {
					return err
				}
				return a.print(repairView(res))
			},
		},
		a.newReconcileCmd(),
		a.newRestoreCmd(),
		&cobra.Command{
			Use:   "recover",
			Short: "Finish or roll back attempts interrupted by a crash",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				e, err := a.engine()
				if err != nil {
					return err
				}
				actions, err := e.RecoverInterrupted(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(recoveryView(actions))
			},
		},
	)
	return cmd
}

func (a *app) newReconcileCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Make the archive directory and the index agree",
		Long: `Reconcile re-indexes archive directories that carry metadata but are missing
from the index, removes partial copies that no interrupted attempt owns, and
drops index entries whose directory is gone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			report, err := e.Reconcile(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			return a.print(reconcileView{report})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report differences without changing anything")
	return cmd
}

func (a *app) newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <archive-path>",
		Short: "Move an archived spec back into the specs directory",
		Long: `Restore copies an archived spec back to <specs>/<name>, verifies the copy, and
then removes the archive and its index entry. An existing spec with the same
name is never overwritten. The archive may be given as an absolute path, a
directory name under the archive root, or a path relative to the project root.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			path := a.resolveArchivePath(e, args[0])
			ok, err := a.confirm(cmd, "Restore "+path+"?",
				fmt.Sprintf("The spec is moved back under %s.", e.SpecsDir()))
			if err != nil {
				return err
			}
			if !ok {
				return a.print("Cancelled.")
			}
			res, err := e.RestoreSpec(cmd.Context(), path)
			if res == nil {
				return err
			}
			if perr := a.print(resultView{Result: res, Restored: true}); perr != nil && err == nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}
