package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/speckeeper/internal/archive"
	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/exitcode"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/metrics"
	"github.com/felixgeelhaar/speckeeper/internal/settings"
	"github.com/felixgeelhaar/speckeeper/internal/ux"
)

// app holds what the commands share. Everything except the injected
// dependencies is filled in by setup before a command runs.
type app struct {
	fs          afero.Fs
	workdir     string
	out         io.Writer
	errOut      io.Writer
	getenv      func(string) string
	prompter    ux.Prompter
	interactive func() bool
	now         func() time.Time

	root     *cobra.Command
	loader   *settings.Loader
	settings settings.Settings
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	eng      *archive.Engine
}

// Option configures the command tree. The defaults use the real filesystem,
// process environment and terminal.
type Option func(*app)

// WithFs replaces the filesystem used for specs, archives and settings.
func WithFs(fs afero.Fs) Option {
	return func(a *app) { a.fs = fs }
}

// WithWorkingDir sets where project root discovery starts.
func WithWorkingDir(dir string) Option {
	return func(a *app) { a.workdir = dir }
}

// WithOutput redirects command output and error reports.
func WithOutput(out, errOut io.Writer) Option {
	return func(a *app) {
		a.out = out
		a.errOut = errOut
	}
}

// WithPrompter answers confirmations and selections. interactive reports
// whether prompting is possible at all.
func WithPrompter(p ux.Prompter, interactive bool) Option {
	return func(a *app) {
		a.prompter = p
		a.interactive = func() bool { return interactive }
	}
}

// WithEnv replaces the environment lookup used for CI detection and root
// discovery.
func WithEnv(getenv func(string) string) Option {
	return func(a *app) { a.getenv = getenv }
}

// WithClock overrides time.Now for archival decisions.
func WithClock(now func() time.Time) Option {
	return func(a *app) { a.now = now }
}

func newApp(opts ...Option) *app {
	a := &app{
		fs:          afero.NewOsFs(),
		out:         os.Stdout,
		errOut:      os.Stderr,
		getenv:      os.Getenv,
		interactive: ux.IsInteractive,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.loader = settings.NewLoader(a.fs)
	a.logger = log.Discard()
	a.root = a.newRootCmd()
	return a
}

func (a *app) newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "speckeeper",
		Short: "Track spec completion and archive finished specs",
		Long: `speckeeper reads the tasks.md checklist of every spec under your specs
directory, reports how far along each spec is, and moves completed specs into
a timestamped archive with verification, an index and crash-safe rollback.

` + exitCodeHelp(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	pf := root.PersistentFlags()
	pf.String("root", ".", "project root (discovered from the working directory when unset)")
	pf.String("specs-dir", "", "specs directory (default <root>/specs)")
	pf.String("config-dir", "", "directory holding "+config.FileName+" (default <root>)")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.StringP("format", "o", ux.FormatText, "output format: text, json, yaml")
	pf.Bool("no-color", false, "disable colored output")
	pf.Int("max-depth", 0, "maximum task nesting depth")
	pf.String("metrics-file", "", "write Prometheus metrics to this file after each run")

	root.AddCommand(
		a.newScanCmd(),
		a.newStatusCmd(),
		a.newTasksCmd(),
		a.newArchiveCmd(),
		a.newArchivesCmd(),
		a.newConfigCmd(),
		a.newWatchCmd(),
		a.newVersionCmd(),
	)
	return root
}

func exitCodeHelp() string {
	var b strings.Builder
	b.WriteString("Exit codes:\n")
	for _, code := range []int{
		exitcode.Success, exitcode.GeneralError, exitcode.UsageError, exitcode.ValidationError,
		exitcode.IntegrityError, exitcode.ConfigError, exitcode.NotFound, exitcode.Interrupted,
	} {
		fmt.Fprintf(&b, "  %-4d %s\n", code, exitcode.GetExitCodeDescription(code))
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	return newApp(opts...).root
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the command tree with ctx and process arguments. The
// error, if any, has already been reported on stderr when it is returned.
func ExecuteContext(ctx context.Context, opts ...Option) error {
	return newApp(opts...).execute(ctx)
}

func (a *app) execute(ctx context.Context) error {
	err := a.root.ExecuteContext(ctx)
	a.flushMetrics()
	if err != nil && ctx.Err() == nil {
		ux.RenderError(a.errOut, a.format(), a.noColor(), err)
	}
	return err
}
