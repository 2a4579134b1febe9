// Package archive moves completed specs into the archive and back. Every
// attempt follows the same state machine: validate, copy, verify, write
// metadata, park the source, index, then delete the parked source. A failure
// before the index is updated rolls the attempt back and leaves the source
// where it was.
package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/checkpoint"
	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
	"github.com/felixgeelhaar/speckeeper/internal/index"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/metrics"
	"github.com/felixgeelhaar/speckeeper/internal/spec"
)

// destinationTimeFormat is filesystem safe on every platform.
const destinationTimeFormat = "2006-01-02T15-04-05Z"

// JournalDir is where attempts are journaled, relative to the config
// directory.
var JournalDir = filepath.Join(".speckeeper", "journal")

// Paths locates a project on the filesystem.
type Paths struct {
	// Root is the project root; relative archive locations resolve here.
	Root string
	// SpecsDir defaults to <Root>/specs.
	SpecsDir string
	// ConfigDir holds .archival-config.json and defaults to Root.
	ConfigDir string
}

func (p Paths) withDefaults() Paths {
	if p.SpecsDir == "" {
		p.SpecsDir = filepath.Join(p.Root, "specs")
	}
	if p.ConfigDir == "" {
		p.ConfigDir = p.Root
	}
	return p
}

// Engine performs archival and restore attempts.
type Engine struct {
	fs          afero.Fs
	paths       Paths
	archiveRoot string

	scanner *spec.Scanner
	specs   spec.Repository
	config  *config.Manager
	index   *index.Manager
	journal *checkpoint.Journal
	metrics *metrics.Metrics
	logger  *log.Logger
	now     func() time.Time

	maxDepth       int
	loadWarnings   []string
	afterPhaseHook func(phase checkpoint.Phase) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records archival metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxDepth sets the task nesting limit for parsed task documents.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) { e.maxDepth = depth }
}

// WithRepository replaces the spec scanner used for validation and
// discovery.
func WithRepository(r spec.Repository) Option {
	return func(e *Engine) { e.specs = r }
}

// New builds an engine for the project at paths. The archival policy is
// loaded once to locate the archive root; a missing or corrupt policy file is
// replaced by defaults.
func New(fs afero.Fs, paths Paths, opts ...Option) (*Engine, error) {
	e := &Engine{fs: fs, paths: paths.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.OrDefault(e.logger).With("component", "archive")

	e.config = config.NewManager(fs, e.paths.ConfigDir, e.logger)
	loaded, err := e.config.Load()
	if err != nil {
		return nil, err
	}
	e.loadWarnings = loaded.Warnings
	e.archiveRoot = loaded.Config.ResolveLocation(e.paths.Root)

	scanOpts := []spec.Option{spec.WithArchiveDir(e.archiveRoot), spec.WithLogger(e.logger)}
	if e.maxDepth > 0 {
		scanOpts = append(scanOpts, spec.WithMaxDepth(e.maxDepth))
	}
	e.scanner = spec.NewScanner(fs, e.paths.SpecsDir, scanOpts...)
	if e.specs == nil {
		e.specs = e.scanner
	}
	e.index = index.NewManager(fs, e.archiveRoot, e.logger)
	e.journal = checkpoint.NewJournal(fs, filepath.Join(e.paths.ConfigDir, JournalDir), e.logger)
	return e, nil
}

// Scanner returns the spec scanner over the specs directory.
func (e *Engine) Scanner() *spec.Scanner { return e.scanner }

// Config returns the policy manager.
func (e *Engine) Config() *config.Manager { return e.config }

// Index returns the archive index manager.
func (e *Engine) Index() *index.Manager { return e.index }

// Journal returns the attempt journal.
func (e *Engine) Journal() *checkpoint.Journal { return e.journal }

// ArchiveRoot returns the resolved archive location.
func (e *Engine) ArchiveRoot() string { return e.archiveRoot }

// SpecsDir returns the specs root.
func (e *Engine) SpecsDir() string { return e.paths.SpecsDir }

// LoadWarnings returns repairs applied to the policy file when the engine was
// built.
func (e *Engine) LoadWarnings() []string { return append([]string(nil), e.loadWarnings...) }

// Result describes one archival or restore attempt.
type Result struct {
	SpecName    string           `json:"specName" yaml:"specName"`
	Success     bool             `json:"success" yaml:"success"`
	Skipped     bool             `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Reason      string           `json:"reason,omitempty" yaml:"reason,omitempty"`
	Phase       checkpoint.Phase `json:"phase" yaml:"phase"`
	AttemptID   string           `json:"attemptId,omitempty" yaml:"attemptId,omitempty"`
	SourcePath  string           `json:"sourcePath,omitempty" yaml:"sourcePath,omitempty"`
	ArchivePath string           `json:"archivePath,omitempty" yaml:"archivePath,omitempty"`
	Issues      []string         `json:"issues,omitempty" yaml:"issues,omitempty"`
	Warnings    []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	FilesCopied int              `json:"filesCopied,omitempty" yaml:"filesCopied,omitempty"`
	BytesCopied int64            `json:"bytesCopied,omitempty" yaml:"bytesCopied,omitempty"`
	Duration    time.Duration    `json:"duration" yaml:"duration"`
	Error       string           `json:"error,omitempty" yaml:"error,omitempty"`

	Metadata *index.ArchiveMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

func (r *Result) fail(err error) error {
	r.Success = false
	if err != nil {
		r.Error = err.Error()
	}
	return err
}

// policy reloads the archival policy so edits between runs take effect.
func (e *Engine) policy(res *Result) config.ArchivalConfig {
	loaded, err := e.config.Load()
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("using default policy: %v", err))
		return config.Default()
	}
	res.Warnings = append(res.Warnings, loaded.Warnings...)
	return loaded.Config
}

// checkName rejects names that would resolve outside the specs directory or
// onto the archive root, whatever Repository is in use.
func (e *Engine) checkName(name string) error {
	if err := spec.CheckName(name); err != nil {
		return err
	}
	if filepath.Join(e.paths.SpecsDir, name) == e.archiveRoot {
		return errors.NewSpecNameInvalidError(name)
	}
	return nil
}

// destination picks <archiveRoot>/<name>-<timestamp>, adding a numeric
// suffix when that directory already exists.
func (e *Engine) destination(name string, at time.Time) string {
	base := filepath.Join(e.archiveRoot, fmt.Sprintf("%s-%s", name, at.UTC().Format(destinationTimeFormat)))
	dest := base
	for i := 2; fsutil.Exists(e.fs, dest); i++ {
		dest = fmt.Sprintf("%s-%d", base, i)
	}
	return dest
}

// stagingPath is where the source is parked while the index is updated. It
// is derived from the attempt id so recovery can find it.
func stagingPath(source, attemptID string) string {
	return filepath.Join(filepath.Dir(source), fmt.Sprintf(".%s.archiving-%s", filepath.Base(source), attemptID))
}

// advance moves a to phase and journals it. Journaling starts with the first
// phase that touches the filesystem.
func (e *Engine) advance(a *checkpoint.Attempt, to checkpoint.Phase) error {
	if err := a.Advance(to, e.now()); err != nil {
		return err
	}
	if to == checkpoint.PhaseValidating {
		return nil
	}
	if err := e.journal.Save(a); err != nil {
		return err
	}
	if e.afterPhaseHook != nil {
		return e.afterPhaseHook(to)
	}
	return nil
}

// ArchiveSpec archives the named spec now, ignoring the enabled flag and the
// delay. The spec must be valid and complete. On failure the returned result
// describes what happened and the error carries the cause; the source spec
// is never modified by a failed attempt.
func (e *Engine) ArchiveSpec(ctx context.Context, name string) (*Result, error) {
	start := e.now()
	res := &Result{SpecName: name, Phase: checkpoint.PhasePending}
	cfg := e.policy(res)

	res, err := e.archive(ctx, name, cfg, res)
	res.Duration = e.now().Sub(start)
	switch {
	case err == nil:
		e.metrics.ObserveAttempt(metrics.OutcomeArchived, res.Duration)
		e.logger.Info("archived spec", "spec", name, "archive", res.ArchivePath, "files", res.FilesCopied)
	default:
		e.metrics.ObserveAttempt(metrics.OutcomeFailed, res.Duration)
		e.metrics.RecordError(err, "archive")
		e.logger.WithError(err).Warn("archival failed", "spec", name, "phase", res.Phase)
	}
	return res, err
}

func (e *Engine) archive(ctx context.Context, name string, cfg config.ArchivalConfig, res *Result) (*Result, error) {
	if err := e.checkName(name); err != nil {
		return res, res.fail(err)
	}
	source := filepath.Join(e.paths.SpecsDir, name)
	res.SourcePath = source
	attempt := checkpoint.NewAttempt(checkpoint.OperationArchive, name, source, "", e.now())
	res.AttemptID = attempt.ID

	// VALIDATING
	if err := e.advance(attempt, checkpoint.PhaseValidating); err != nil {
		return res, res.fail(err)
	}
	res.Phase = attempt.Phase
	if err := ctx.Err(); err != nil {
		return res, res.fail(err)
	}
	sp, err := e.specs.Load(name)
	if err != nil {
		return res, res.fail(err)
	}
	validation := e.specs.ValidateSpec(sp.Path)
	res.Warnings = append(res.Warnings, validation.Warnings...)
	if !validation.Valid {
		res.Issues = append(res.Issues, validation.Issues...)
		return res, res.fail(errors.NewSpecInvalidError(name, validation.Issues))
	}
	if !sp.IsComplete {
		res.Issues = append(res.Issues, fmt.Sprintf("%d of %d tasks complete", sp.CompletedTasks, sp.TotalTasks))
		return res, res.fail(errors.NewSpecIncompleteError(name, sp.CompletedTasks, sp.TotalTasks))
	}

	if err := e.fs.MkdirAll(e.archiveRoot, 0o755); err != nil {
		return res, res.fail(errors.Wrap(errors.ErrCodeArchiveDestinationIO,
			fmt.Sprintf("failed to create archive root %s", e.archiveRoot), err))
	}
	archivedAt := e.now().UTC()
	attempt.Destination = e.destination(name, archivedAt)
	attempt.Staging = stagingPath(source, attempt.ID)
	res.ArchivePath = attempt.Destination

	// COPYING
	if err := e.advance(attempt, checkpoint.PhaseCopying); err != nil {
		return res, res.fail(errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to journal archival attempt", err))
	}
	res.Phase = attempt.Phase
	copied, err := copyTree(ctx, e.fs, source, attempt.Destination)
	res.FilesCopied, res.BytesCopied = copied.Files, copied.Bytes
	if err != nil {
		return res, e.rollback(attempt, res, errors.Wrap(errors.ErrCodeArchiveCopy,
			fmt.Sprintf("failed to copy %s", source), err))
	}
	e.metrics.AddCopied(copied.Files, copied.Bytes)

	// VERIFYING
	if err := e.advance(attempt, checkpoint.PhaseVerifying); err != nil {
		return res, e.rollback(attempt, res, err)
	}
	res.Phase = attempt.Phase
	summary, mismatch, err := verifyCopy(ctx, e.fs, source, attempt.Destination, cfg.Verification)
	if err != nil {
		return res, e.rollback(attempt, res, errors.Wrap(errors.ErrCodeArchiveIntegrity, "failed to verify archive", err))
	}
	if mismatch != "" {
		return res, e.rollback(attempt, res, errors.NewIntegrityError(mismatch))
	}

	meta := index.ArchiveMetadata{
		SchemaVersion:  index.MetadataVersion,
		SpecName:       name,
		SpecTitle:      sp.Title,
		OriginalPath:   source,
		ArchivePath:    attempt.Destination,
		CompletionDate: sp.LastModified.UTC(),
		ArchivalDate:   archivedAt,
		TotalTasks:     sp.TotalTasks,
		CompletedTasks: sp.CompletedTasks,
		FileCount:      len(summary.Files),
		TotalBytes:     summary.Bytes,
		Verification:   string(cfg.Verification),
		AttemptID:      attempt.ID,
	}
	if cfg.Verification == config.VerifyDigest {
		meta.Digest = summary.Digest()
	}
	if err := index.WriteMetadata(e.fs, attempt.Destination, meta); err != nil {
		return res, e.rollback(attempt, res, err)
	}
	res.Metadata = &meta

	if err := e.fs.Rename(source, attempt.Staging); err != nil {
		return res, e.rollback(attempt, res, errors.Wrap(errors.ErrCodeArchiveRemove,
			fmt.Sprintf("failed to move %s out of the specs directory", source), err))
	}

	if err := e.index.Add(meta); err != nil {
		return res, e.rollback(attempt, res, err)
	}

	// INDEXED
	if err := e.advance(attempt, checkpoint.PhaseIndexed); err != nil {
		// the archive is committed; recovery finishes the cleanup
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not journal index update: %v", err))
	}
	res.Phase = attempt.Phase
	res.Success = true
	if err := e.fs.RemoveAll(attempt.Staging); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("archived, but could not delete %s: %v", attempt.Staging, err))
		return res, nil
	}
	if err := attempt.Advance(checkpoint.PhaseDone, e.now()); err == nil {
		res.Phase = attempt.Phase
	}
	if err := e.journal.Delete(attempt.ID); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}
	return res, nil
}

// rollback removes the partial destination and puts a parked source back.
// The journal entry is kept when cleanup itself fails so a later recovery
// pass can retry.
func (e *Engine) rollback(a *checkpoint.Attempt, res *Result, cause error) error {
	failedPhase := a.Phase
	e.logger.WithError(cause).Warn("rolling back archival attempt", "spec", a.SpecName, "phase", failedPhase, "attempt", a.ID)

	var cleanup []string
	if a.Staging != "" && fsutil.Exists(e.fs, a.Staging) && !fsutil.Exists(e.fs, a.Source) {
		if err := e.fs.Rename(a.Staging, a.Source); err != nil {
			cleanup = append(cleanup, fmt.Sprintf("restore %s: %v", a.Source, err))
		}
	}
	if a.Destination != "" {
		if err := e.fs.RemoveAll(a.Destination); err != nil {
			cleanup = append(cleanup, fmt.Sprintf("remove %s: %v", a.Destination, err))
		}
	}

	e.metrics.ObserveRollback(string(failedPhase))
	if len(cleanup) > 0 {
		// journaled in its failed phase so RecoverInterrupted picks it up
		a.Error = cause.Error()
		_ = e.journal.Save(a)
		_ = a.Fail(cause, e.now())
		res.Phase = a.Phase
		return res.fail(errors.Wrap(errors.ErrCodeArchiveRollback,
			fmt.Sprintf("rollback incomplete (%s) after: %v", strings.Join(cleanup, "; "), cause), cause))
	}

	_ = a.Fail(cause, e.now())
	res.Phase = a.Phase
	res.ArchivePath = ""
	res.Metadata = nil
	if err := e.journal.Delete(a.ID); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}
	return res.fail(cause)
}
