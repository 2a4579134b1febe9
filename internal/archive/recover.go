package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/checkpoint"
	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
	"github.com/felixgeelhaar/speckeeper/internal/index"
)

// Recovery outcomes.
const (
	RecoveryCommitted  = "committed"
	RecoveryRolledBack = "rolled_back"
	RecoveryFailed     = "failed"
)

// RecoveryAction reports what was done with one interrupted attempt.
type RecoveryAction struct {
	AttemptID string               `json:"attemptId" yaml:"attemptId"`
	Operation checkpoint.Operation `json:"operation" yaml:"operation"`
	SpecName  string               `json:"specName" yaml:"specName"`
	Phase     checkpoint.Phase     `json:"phase" yaml:"phase"`
	Outcome   string               `json:"outcome" yaml:"outcome"`
	Detail    string               `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// RecoverInterrupted finishes or undoes every journaled attempt that never
// reached a terminal phase. An archive whose destination carries metadata
// and whose source was already parked is committed; anything else is rolled
// back. Journal entries are removed once handled.
func (e *Engine) RecoverInterrupted(ctx context.Context) ([]RecoveryAction, error) {
	attempts, err := e.journal.Unfinished()
	if err != nil {
		return nil, err
	}

	actions := []RecoveryAction{}
	for _, a := range attempts {
		if err := ctx.Err(); err != nil {
			return actions, err
		}
		action := RecoveryAction{AttemptID: a.ID, Operation: a.Operation, SpecName: a.SpecName, Phase: a.Phase}
		var rerr error
		switch a.Operation {
		case checkpoint.OperationRestore:
			action.Outcome, rerr = e.recoverRestore(a)
		default:
			action.Outcome, rerr = e.recoverArchive(a)
		}
		if rerr != nil {
			action.Outcome = RecoveryFailed
			action.Detail = rerr.Error()
			e.logger.WithError(rerr).Warn("could not recover interrupted attempt", "attempt", a.ID, "spec", a.SpecName)
		} else {
			if err := e.journal.Delete(a.ID); err != nil {
				action.Detail = err.Error()
			}
			e.logger.Info("recovered interrupted attempt", "attempt", a.ID, "spec", a.SpecName, "outcome", action.Outcome)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func (e *Engine) recoverArchive(a *checkpoint.Attempt) (string, error) {
	staging := a.Staging
	if staging == "" {
		staging = stagingPath(a.Source, a.ID)
	}
	parked := fsutil.Exists(e.fs, staging)
	sourceGone := !fsutil.Exists(e.fs, a.Source)

	if a.Destination != "" && index.HasMetadata(e.fs, a.Destination) && sourceGone {
		meta, err := index.ReadMetadata(e.fs, a.Destination)
		if err != nil {
			return "", err
		}
		meta.ArchivePath = a.Destination
		if err := e.index.Add(meta); err != nil {
			return "", err
		}
		if parked {
			if err := e.fs.RemoveAll(staging); err != nil {
				return "", errors.Wrap(errors.ErrCodeArchiveRemove, fmt.Sprintf("failed to delete %s", staging), err)
			}
		}
		return RecoveryCommitted, nil
	}

	if parked && sourceGone {
		if err := e.fs.Rename(staging, a.Source); err != nil {
			return "", errors.Wrap(errors.ErrCodeArchiveRollback, fmt.Sprintf("failed to move %s back", staging), err)
		}
	}
	if a.Destination != "" {
		if err := e.fs.RemoveAll(a.Destination); err != nil {
			return "", errors.Wrap(errors.ErrCodeArchiveRollback, fmt.Sprintf("failed to delete %s", a.Destination), err)
		}
		if _, err := e.index.Remove(a.Destination); err != nil {
			return "", err
		}
	}
	return RecoveryRolledBack, nil
}

// recoverRestore completes a restore whose index entry was already removed
// and otherwise deletes the partial copy, keeping the archive indexed.
func (e *Engine) recoverRestore(a *checkpoint.Attempt) (string, error) {
	if a.Phase == checkpoint.PhaseIndexed {
		if err := e.fs.RemoveAll(a.Source); err != nil {
			return "", errors.Wrap(errors.ErrCodeArchiveRemove, fmt.Sprintf("failed to delete %s", a.Source), err)
		}
		return RecoveryCommitted, nil
	}
	if err := e.fs.RemoveAll(a.Destination); err != nil {
		return "", errors.Wrap(errors.ErrCodeArchiveRollback, fmt.Sprintf("failed to delete %s", a.Destination), err)
	}
	if index.HasMetadata(e.fs, a.Source) {
		if _, found, err := e.index.Find(a.Source); err == nil && !found {
			meta, err := index.ReadMetadata(e.fs, a.Source)
			if err != nil {
				return "", err
			}
			meta.ArchivePath = a.Source
			if err := e.index.Add(meta); err != nil {
				return "", err
			}
		}
	}
	return RecoveryRolledBack, nil
}

// ReconcileReport lists the differences between the archive directory and
// the index, and what was done about them.
type ReconcileReport struct {
	DryRun bool `json:"dryRun" yaml:"dryRun"`
	// Reindexed archives had metadata but no index entry.
	Reindexed []string `json:"reindexed" yaml:"reindexed"`
	// RemovedPartial archives had no metadata and no owning attempt.
	RemovedPartial []string `json:"removedPartial" yaml:"removedPartial"`
	// InProgress archives belong to an unfinished attempt and were left alone.
	InProgress []string `json:"inProgress" yaml:"inProgress"`
	// StaleEntries point at directories that no longer exist.
	StaleEntries []string            `json:"staleEntries" yaml:"staleEntries"`
	Repair       *index.RepairResult `json:"repair,omitempty" yaml:"repair,omitempty"`
}

// Reconcile makes the index and the archive directory agree. With dryRun set
// nothing is changed.
func (e *Engine) Reconcile(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
	report := &ReconcileReport{
		DryRun:         dryRun,
		Reindexed:      []string{},
		RemovedPartial: []string{},
		InProgress:     []string{},
		StaleEntries:   []string{},
	}

	if fsutil.IsDir(e.fs, e.archiveRoot) {
		dirs, err := afero.ReadDir(e.fs, e.archiveRoot)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, fmt.Sprintf("failed to list %s", e.archiveRoot), err)
		}
		for _, d := range dirs {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
				continue
			}
			dir := filepath.Join(e.archiveRoot, d.Name())
			if err := e.reconcileDir(dir, dryRun, report); err != nil {
				return report, err
			}
		}
	}

	entries, err := e.index.Entries()
	if err != nil {
		return report, err
	}
	for _, entry := range entries {
		if !fsutil.Exists(e.fs, entry.ArchivePath) {
			report.StaleEntries = append(report.StaleEntries, entry.ArchivePath)
		}
	}
	if !dryRun {
		repair, err := e.ValidateAndRepairArchiveIndex()
		if err != nil {
			return report, err
		}
		report.Repair = &repair
	}
	return report, nil
}

func (e *Engine) reconcileDir(dir string, dryRun bool, report *ReconcileReport) error {
	if index.HasMetadata(e.fs, dir) {
		if _, found, err := e.index.Find(dir); err != nil || found {
			return err
		}
		report.Reindexed = append(report.Reindexed, dir)
		if dryRun {
			return nil
		}
		meta, err := index.ReadMetadata(e.fs, dir)
		if err != nil {
			return err
		}
		meta.ArchivePath = dir
		return e.index.Add(meta)
	}

	owned, err := e.journal.Owns(dir)
	if err != nil {
		return err
	}
	if owned {
		report.InProgress = append(report.InProgress, dir)
		return nil
	}
	report.RemovedPartial = append(report.RemovedPartial, dir)
	if dryRun {
		return nil
	}
	if err := e.fs.RemoveAll(dir); err != nil {
		return errors.Wrap(errors.ErrCodeArchiveRemove, fmt.Sprintf("failed to delete partial archive %s", dir), err)
	}
	e.logger.Info("removed partial archive", "dir", dir)
	return nil
}
