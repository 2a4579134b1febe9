// Package checkpoint journals archival attempts so an interrupted attempt can
// be finished or undone by a later run.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
	"github.com/felixgeelhaar/speckeeper/internal/log"
)

// JournalVersion is the attempt file schema version.
const JournalVersion = "1.0"

// Phase is a state of the archival state machine.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseValidating Phase = "validating"
	PhaseCopying    Phase = "copying"
	PhaseVerifying  Phase = "verifying"
	PhaseIndexed    Phase = "indexed"
	PhaseDone       Phase = "done"
	PhaseRolledBack Phase = "rolled_back"
)

var transitions = map[Phase][]Phase{
	PhasePending:    {PhaseValidating},
	PhaseValidating: {PhaseCopying},
	PhaseCopying:    {PhaseVerifying, PhaseRolledBack},
	PhaseVerifying:  {PhaseIndexed, PhaseRolledBack},
	PhaseIndexed:    {PhaseDone},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseRolledBack
}

// Operation names what an attempt does.
type Operation string

const (
	OperationArchive Operation = "archive"
	OperationRestore Operation = "restore"
)

// Transition records when an attempt entered a phase.
type Transition struct {
	Phase Phase     `json:"phase"`
	At    time.Time `json:"at"`
}

// Attempt is one archival (or restore) operation.
type Attempt struct {
	Version     string    `json:"version"`
	ID          string    `json:"id"`
	Operation   Operation `json:"operation"`
	SpecName    string    `json:"specName"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	// Staging is where the source directory is parked between metadata
	// write and index update.
	Staging     string       `json:"staging,omitempty"`
	Phase       Phase        `json:"phase"`
	StartedAt   time.Time    `json:"startedAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Transitions []Transition `json:"transitions"`
	Error       string       `json:"error,omitempty"`
}

// NewAttempt creates a pending attempt with a fresh id.
func NewAttempt(op Operation, specName, source, destination string, now time.Time) *Attempt {
	return &Attempt{
		Version:     JournalVersion,
		ID:          uuid.NewString(),
		Operation:   op,
		SpecName:    specName,
		Source:      source,
		Destination: destination,
		Phase:       PhasePending,
		StartedAt:   now,
		UpdatedAt:   now,
		Transitions: []Transition{{Phase: PhasePending, At: now}},
	}
}

// Advance moves the attempt to the next phase.
func (a *Attempt) Advance(to Phase, now time.Time) error {
	if !CanTransition(a.Phase, to) {
		return fmt.Errorf("invalid phase transition %s -> %s", a.Phase, to)
	}
	a.Phase = to
	a.UpdatedAt = now
	a.Transitions = append(a.Transitions, Transition{Phase: to, At: now})
	return nil
}

// Fail records cause and rolls the attempt back.
func (a *Attempt) Fail(cause error, now time.Time) error {
	if cause != nil {
		a.Error = cause.Error()
	}
	return a.Advance(PhaseRolledBack, now)
}

// Journal stores attempts as JSON files, one per attempt id.
type Journal struct {
	fs     afero.Fs
	dir    string
	logger *log.Logger
}

// NewJournal creates a journal in dir.
func NewJournal(fs afero.Fs, dir string, logger *log.Logger) *Journal {
	return &Journal{fs: fs, dir: dir, logger: log.OrDefault(logger)}
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, id+".json")
}

// Save persists the attempt.
func (j *Journal) Save(a *Attempt) error {
	if a == nil {
		return errors.New(errors.ErrCodeFileWriteFailed, "attempt is nil")
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to marshal attempt", err)
	}
	if err := fsutil.WriteFileAtomic(j.fs, j.path(a.ID), data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to write journal entry %s", a.ID), err)
	}
	return nil
}

// Load reads one attempt.
func (j *Journal) Load(id string) (*Attempt, error) {
	data, err := afero.ReadFile(j.fs, j.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(j.path(id))
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read journal entry %s", id), err)
	}
	var a Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("malformed journal entry %s", id), err)
	}
	return &a, nil
}

// Exists reports whether an attempt is journaled.
func (j *Journal) Exists(id string) bool {
	return fsutil.Exists(j.fs, j.path(id))
}

// Delete removes an attempt. Deleting a missing attempt is not an error.
func (j *Journal) Delete(id string) error {
	if err := j.fs.Remove(j.path(id)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to delete journal entry %s", id), err)
	}
	return nil
}

// List returns journaled attempt ids, sorted.
func (j *Journal) List() ([]string, error) {
	entries, err := afero.ReadDir(j.fs, j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, fmt.Sprintf("failed to read %s", j.dir), err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Unfinished loads every journaled attempt that has not reached a terminal
// phase, oldest first. Unreadable entries are logged and skipped.
func (j *Journal) Unfinished() ([]*Attempt, error) {
	ids, err := j.List()
	if err != nil {
		return nil, err
	}
	var out []*Attempt
	for _, id := range ids {
		a, err := j.Load(id)
		if err != nil {
			j.logger.WithError(err).Warn("skipping unreadable journal entry", "id", id)
			continue
		}
		if !a.Phase.Terminal() {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].StartedAt.Before(out[k].StartedAt)
	})
	return out, nil
}

// Owns reports whether an unfinished attempt writes to or stages dir.
func (j *Journal) Owns(dir string) (bool, error) {
	attempts, err := j.Unfinished()
	if err != nil {
		return false, err
	}
	dir = filepath.Clean(dir)
	for _, a := range attempts {
		if filepath.Clean(a.Destination) == dir || (a.Staging != "" && filepath.Clean(a.Staging) == dir) {
			return true, nil
		}
	}
	return false, nil
}
