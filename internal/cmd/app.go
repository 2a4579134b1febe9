package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/speckeeper/internal/archive"
	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/metrics"
	"github.com/felixgeelhaar/speckeeper/internal/settings"
	"github.com/felixgeelhaar/speckeeper/internal/ux"
)

// setup resolves settings for the command about to run. The project root is
// discovered from the working directory unless --root or SPECKEEPER_ROOT
// names it.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := a.loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}

	if !cmd.Flags().Changed("root") && a.getenv(settings.EnvName("root")) == "" {
		wd := a.workdir
		if wd == "" {
			var err error
			if wd, err = os.Getwd(); err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}
		}
		if found, err := ux.DiscoverProjectRoot(a.fs, wd); err == nil {
			a.loader.SetDefault("root", found.Root)
		}
	}

	s, notes, err := a.loader.Load()
	if err != nil {
		return err
	}
	a.settings = s
	a.logger = log.New(s.LogConfig(a.errOut))
	log.SetDefaultLogger(a.logger)
	for _, n := range notes {
		a.logger.Debug("settings loaded", "source", n)
	}
	a.registry, a.metrics = metrics.NewRegistry()
	return nil
}

// format is the output format, usable before setup has run.
func (a *app) format() string {
	if a.settings.Output.Format != "" {
		return a.settings.Output.Format
	}
	if f, err := a.root.PersistentFlags().GetString("format"); err == nil {
		return f
	}
	return ux.FormatText
}

func (a *app) noColor() bool {
	if a.settings.Output.NoColor {
		return true
	}
	v, _ := a.root.PersistentFlags().GetBool("no-color")
	return v
}

func (a *app) print(data any) error {
	p, err := ux.NewPrinter(a.format(), a.out, a.noColor())
	if err != nil {
		return err
	}
	return p.Print(data)
}

func (a *app) engine() (*archive.Engine, error) {
	if a.eng != nil {
		return a.eng, nil
	}
	opts := []archive.Option{
		archive.WithLogger(a.logger),
		archive.WithMetrics(a.metrics),
		archive.WithMaxDepth(a.settings.Parser.MaxDepth),
	}
	if a.now != nil {
		opts = append(opts, archive.WithClock(a.now))
	}
	e, err := archive.New(a.fs, archive.Paths{
		Root:      a.settings.Root,
		SpecsDir:  a.settings.SpecsDir,
		ConfigDir: a.settings.ConfigDir,
	}, opts...)
	if err != nil {
		return nil, err
	}
	for _, w := range e.LoadWarnings() {
		a.logger.Warn("archival config repaired", "warning", w)
	}
	a.eng = e
	return e, nil
}

func (a *app) configManager() *config.Manager {
	return config.NewManager(a.fs, a.settings.ConfigDir, a.logger)
}

// confirm asks before a mutation. --yes, CI and a non-terminal stdin all
// skip the question.
func (a *app) confirm(cmd *cobra.Command, title, description string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true, nil
	}
	if a.prompter == nil || !ux.ShouldPrompt(a.getenv, a.interactive()) {
		return true, nil
	}
	return a.prompter.Confirm(title, description, true)
}

func (a *app) canPrompt() bool {
	return a.prompter != nil && ux.ShouldPrompt(a.getenv, a.interactive())
}

// flushMetrics writes the registry to metrics.file. Failures are logged, not
// returned, so they never change the exit code.
func (a *app) flushMetrics() {
	if a.registry == nil || a.settings.Metrics.File == "" {
		return
	}
	if err := metrics.WriteTextfile(a.settings.Metrics.File, a.registry); err != nil {
		a.logger.WithError(err).Warn("failed to write metrics file", "path", a.settings.Metrics.File)
	}
}

// resolveArchivePath accepts an absolute path, a directory name under the
// archive root, or a path relative to the project root.
func (a *app) resolveArchivePath(e *archive.Engine, arg string) string {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg)
	}
	if p := filepath.Join(e.ArchiveRoot(), arg); fsutil.Exists(a.fs, p) {
		return p
	}
	return filepath.Join(a.settings.Root, arg)
}

// completeSpecNames offers discovered spec names for shell completion.
func (a *app) completeSpecNames(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	if err := a.setup(cmd, args); err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	e, err := a.engine()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	names, err := e.Scanner().Discover()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
