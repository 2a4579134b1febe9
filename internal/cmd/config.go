package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the archival policy",
		Long: `The archival policy lives in ` + config.FileName + ` in the config directory:

  enabled        archive complete specs automatically (true)
  delayMinutes   wait this long after the last tasks.md change (0)
  location       archive directory, relative to the project root (specs/archive)
  verification   post-copy check: count, size or digest (size)`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective policy",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m := a.configManager()
				res, err := m.Load()
				if err != nil {
					return err
				}
				return a.print(configView{Path: m.Path(), Config: res.Config, Warnings: res.Warnings})
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the policy file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.print(a.configManager().Path())
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the policy file without changing it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m := a.configManager()
				res, err := m.Inspect()
				if err != nil {
					return err
				}
				v := validateView{Path: m.Path(), Exists: fsutil.Exists(a.fs, m.Path()), Valid: true}
				switch {
				case res.Reset:
					v.Valid = false
					v.Problems = res.Warnings
				case res.Migrated:
					v.Pending = res.Warnings
				}
				if err := a.print(v); err != nil {
					return err
				}
				if !v.Valid {
					return errors.NewConfigInvalidError(v.Problems)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one policy field",
			Example: `  speckeeper config set delayMinutes 1440
  speckeeper config set verification digest
  speckeeper config set enabled false`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				m := a.configManager()
				cfg, err := m.Set(args[0], args[1])
				if err != nil {
					return err
				}
				return a.print(configView{Path: m.Path(), Config: cfg, Note: "Saved " + args[0]})
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Rewrite the policy file in the current schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m := a.configManager()
				res, err := m.Load()
				if err != nil {
					return err
				}
				note := "Already current"
				switch {
				case res.Created:
					note = "Created with defaults"
				case res.Reset:
					note = "Replaced corrupt file with defaults"
				case res.Migrated:
					note = "Migrated"
				}
				return a.print(configView{Path: m.Path(), Config: res.Config, Warnings: res.Warnings, Note: note})
			},
		},
		&cobra.Command{
			Use:   "backup",
			Short: "Copy the policy file to a timestamped backup",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := a.configManager().Backup()
				if err != nil {
					return err
				}
				return a.print(path)
			},
		},
		&cobra.Command{
			Use:   "restore [backup]",
			Short: "Restore the policy from a backup (the newest by default)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				backup := ""
				if len(args) == 1 {
					backup = args[0]
				}
				m := a.configManager()
				cfg, err := m.Restore(backup)
				if err != nil {
					return err
				}
				return a.print(configView{Path: m.Path(), Config: cfg, Note: "Restored"})
			},
		},
	)
	return cmd
}
