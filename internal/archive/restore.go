package archive

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/speckeeper/internal/checkpoint"
	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
	"github.com/felixgeelhaar/speckeeper/internal/index"
	"github.com/felixgeelhaar/speckeeper/internal/metrics"
)

// RestoreSpec moves an archived spec back into the specs directory. The
// archive is copied, verified by size, and only then dropped from the index
// and deleted. An existing spec with the same name is never overwritten.
func (e *Engine) RestoreSpec(ctx context.Context, archivePath string) (*Result, error) {
	start := e.now()
	archivePath = filepath.Clean(archivePath)
	res := &Result{Phase: checkpoint.PhasePending, ArchivePath: archivePath}

	res, err := e.restore(ctx, archivePath, res)
	res.Duration = e.now().Sub(start)
	if err != nil {
		e.metrics.ObserveAttempt(metrics.OutcomeFailed, res.Duration)
		e.metrics.RecordError(err, "restore")
		e.logger.WithError(err).Warn("restore failed", "archive", archivePath, "phase", res.Phase)
		return res, err
	}
	e.metrics.ObserveAttempt(metrics.OutcomeRestored, res.Duration)
	e.logger.Info("restored spec", "spec", res.SpecName, "from", archivePath)
	return res, nil
}

func (e *Engine) restore(ctx context.Context, archivePath string, res *Result) (*Result, error) {
	entry, indexed, err := e.index.Find(archivePath)
	if err != nil {
		return res, res.fail(err)
	}
	if !fsutil.IsDir(e.fs, archivePath) {
		return res, res.fail(errors.NewArchiveNotFoundError(archivePath))
	}

	var meta index.ArchiveMetadata
	switch {
	case index.HasMetadata(e.fs, archivePath):
		if meta, err = index.ReadMetadata(e.fs, archivePath); err != nil {
			return res, res.fail(err)
		}
	case indexed:
		meta = index.ArchiveMetadata{SpecName: entry.SpecName, ArchivePath: archivePath}
	default:
		return res, res.fail(errors.NewArchiveNotFoundError(archivePath))
	}
	res.SpecName = meta.SpecName
	res.Metadata = &meta
	if meta.SpecName == "" {
		return res, res.fail(errors.New(errors.ErrCodeArchiveMetadata,
			fmt.Sprintf("archive %s does not record a spec name", archivePath)))
	}
	if err := e.checkName(meta.SpecName); err != nil {
		return res, res.fail(err)
	}

	target := filepath.Join(e.paths.SpecsDir, meta.SpecName)
	attempt := checkpoint.NewAttempt(checkpoint.OperationRestore, meta.SpecName, archivePath, target, e.now())
	res.AttemptID = attempt.ID
	res.SourcePath = target

	if err := e.advance(attempt, checkpoint.PhaseValidating); err != nil {
		return res, res.fail(err)
	}
	res.Phase = attempt.Phase
	if fsutil.Exists(e.fs, target) {
		res.Issues = append(res.Issues, fmt.Sprintf("%s already exists", target))
		return res, res.fail(errors.New(errors.ErrCodeSpecExists, fmt.Sprintf("spec %s already exists", meta.SpecName)).
			WithSuggestion("Rename or archive the existing spec before restoring"))
	}
	if err := ctx.Err(); err != nil {
		return res, res.fail(err)
	}

	if err := e.advance(attempt, checkpoint.PhaseCopying); err != nil {
		return res, res.fail(errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to journal restore attempt", err))
	}
	res.Phase = attempt.Phase
	copied, err := copyTree(ctx, e.fs, archivePath, target)
	res.FilesCopied, res.BytesCopied = copied.Files, copied.Bytes
	if err != nil {
		return res, e.rollbackRestore(attempt, res, errors.Wrap(errors.ErrCodeArchiveCopy,
			fmt.Sprintf("failed to copy %s", archivePath), err))
	}
	e.metrics.AddCopied(copied.Files, copied.Bytes)

	if err := e.advance(attempt, checkpoint.PhaseVerifying); err != nil {
		return res, e.rollbackRestore(attempt, res, err)
	}
	res.Phase = attempt.Phase
	_, mismatch, err := verifyCopy(ctx, e.fs, archivePath, target, config.VerifySize)
	if err != nil {
		return res, e.rollbackRestore(attempt, res, errors.Wrap(errors.ErrCodeArchiveIntegrity, "failed to verify restored spec", err))
	}
	if mismatch != "" {
		return res, e.rollbackRestore(attempt, res, errors.NewIntegrityError(mismatch))
	}
	if err := e.fs.Remove(index.MetadataPath(target)); err != nil && fsutil.Exists(e.fs, index.MetadataPath(target)) {
		return res, e.rollbackRestore(attempt, res, errors.Wrap(errors.ErrCodeArchiveRemove, "failed to drop archive metadata from restored spec", err))
	}

	if _, err := e.index.Remove(archivePath); err != nil {
		return res, e.rollbackRestore(attempt, res, err)
	}
	if err := e.advance(attempt, checkpoint.PhaseIndexed); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not journal index update: %v", err))
	}
	res.Phase = attempt.Phase
	res.Success = true
	if err := e.fs.RemoveAll(archivePath); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("restored, but could not delete %s: %v", archivePath, err))
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

func (e *Engine) rollbackRestore(a *checkpoint.Attempt, res *Result, cause error) error {
	failedPhase := a.Phase
	e.metrics.ObserveRollback(string(failedPhase))
	if err := e.fs.RemoveAll(a.Destination); err != nil {
		a.Error = cause.Error()
		_ = e.journal.Save(a)
		_ = a.Fail(cause, e.now())
		res.Phase = a.Phase
		return res.fail(errors.Wrap(errors.ErrCodeArchiveRollback,
			fmt.Sprintf("rollback incomplete (remove %s: %v) after: %v", a.Destination, err, cause), cause))
	}
	_ = a.Fail(cause, e.now())
	res.Phase = a.Phase
	if err := e.journal.Delete(a.ID); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}
	return res.fail(cause)
}
