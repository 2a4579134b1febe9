package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
	"github.com/felixgeelhaar/speckeeper/internal/log"
)

// Manager is the single owner of the index file. The index is read once and
// cached; every mutation rewrites the whole file.
type Manager struct {
	fs       afero.Fs
	path     string
	logger   *log.Logger
	now      func() time.Time
	cache    *Index
	warnings []string
}

// NewManager creates a manager for <archiveRoot>/.archive-index.json.
func NewManager(fs afero.Fs, archiveRoot string, logger *log.Logger) *Manager {
	return &Manager{
		fs:     fs,
		path:   filepath.Join(archiveRoot, FileName),
		logger: log.OrDefault(logger),
		now:    time.Now,
	}
}

// Path returns the index file location.
func (m *Manager) Path() string {
	return m.path
}

// Warnings returns the repairs applied while loading the index.
func (m *Manager) Warnings() []string {
	return append([]string(nil), m.warnings...)
}

// Reload drops the cached index so the next call reads the file again.
func (m *Manager) Reload() {
	m.cache = nil
	m.warnings = nil
}

func (m *Manager) load() (*Index, error) {
	if m.cache != nil {
		return m.cache, nil
	}

	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeIndexRead, fmt.Sprintf("failed to read %s", m.path), err)
		}
		idx := &Index{Version: Version, LastUpdated: m.now(), Archives: []Entry{}}
		if err := m.persist(idx); err != nil {
			return nil, err
		}
		m.cache = idx
		return idx, nil
	}

	idx, notes := coerceIndex(data, m.now())
	m.cache = idx
	if len(notes) > 0 {
		m.warnings = notes
		for _, n := range notes {
			m.logger.Warn("archive index repaired on load", "path", m.path, "repair", n)
		}
		sortEntries(idx.Archives)
		if err := m.persist(idx); err != nil {
			m.logger.WithError(err).Warn("could not persist repaired archive index", "path", m.path)
		}
	}
	return idx, nil
}

func (m *Manager) persist(idx *Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeIndexWrite, "failed to marshal archive index", err)
	}
	if err := fsutil.WriteFileAtomic(m.fs, m.path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeIndexWrite, fmt.Sprintf("failed to write %s", m.path), err)
	}
	return nil
}

// commit persists next and swaps it into the cache only when the write
// succeeded, so a failed write leaves the cached view unchanged.
func (m *Manager) commit(next *Index) error {
	next.LastUpdated = m.now()
	if err := m.persist(next); err != nil {
		return err
	}
	m.cache = next
	return nil
}

func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ArchivalDate.After(entries[j].ArchivalDate)
	})
}

// Index returns a copy of the index.
func (m *Manager) Index() (*Index, error) {
	idx, err := m.load()
	if err != nil {
		return nil, err
	}
	return idx.clone(), nil
}

// Entries returns all entries, newest first.
func (m *Manager) Entries() ([]Entry, error) {
	idx, err := m.load()
	if err != nil {
		return nil, err
	}
	return append([]Entry{}, idx.Archives...), nil
}

// Find returns the entry for an archive path.
func (m *Manager) Find(archivePath string) (Entry, bool, error) {
	idx, err := m.load()
	if err != nil {
		return Entry{}, false, err
	}
	archivePath = filepath.Clean(archivePath)
	for _, e := range idx.Archives {
		if filepath.Clean(e.ArchivePath) == archivePath {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Add upserts the entry for meta's archive path and re-sorts newest first.
func (m *Manager) Add(meta ArchiveMetadata) error {
	idx, err := m.load()
	if err != nil {
		return err
	}

	entry := meta.Entry()
	next := idx.clone()
	replaced := false
	for i, e := range next.Archives {
		if filepath.Clean(e.ArchivePath) == entry.ArchivePath {
			next.Archives[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		next.Archives = append(next.Archives, entry)
	}
	sortEntries(next.Archives)
	return m.commit(next)
}

// Remove deletes entries for archivePath and reports whether any existed.
// The file is only rewritten when something changed.
func (m *Manager) Remove(archivePath string) (bool, error) {
	idx, err := m.load()
	if err != nil {
		return false, err
	}

	archivePath = filepath.Clean(archivePath)
	next := idx.clone()
	next.Archives = next.Archives[:0]
	for _, e := range idx.Archives {
		if filepath.Clean(e.ArchivePath) != archivePath {
			next.Archives = append(next.Archives, e)
		}
	}
	if len(next.Archives) == len(idx.Archives) {
		return false, nil
	}
	return true, m.commit(next)
}

// Search returns entries whose spec name contains term, ignoring case.
func (m *Manager) Search(term string) ([]Entry, error) {
	idx, err := m.load()
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	out := []Entry{}
	for _, e := range idx.Archives {
		if strings.Contains(strings.ToLower(e.SpecName), term) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Stats summarizes the index without reordering it.
func (m *Manager) Stats() (Stats, error) {
	idx, err := m.load()
	if err != nil {
		return Stats{}, err
	}

	st := Stats{TotalArchives: len(idx.Archives)}
	if len(idx.Archives) == 0 {
		return st, nil
	}
	byDate := append([]Entry(nil), idx.Archives...)
	sort.SliceStable(byDate, func(i, j int) bool {
		return byDate[i].ArchivalDate.Before(byDate[j].ArchivalDate)
	})
	oldest, newest := byDate[0].ArchivalDate, byDate[len(byDate)-1].ArchivalDate
	st.Oldest, st.Newest = &oldest, &newest
	for _, e := range idx.Archives {
		st.TotalTasks += e.TotalTasks
	}
	return st, nil
}

// ValidateAndRepair removes duplicate entries for the same archive path and
// entries whose directory no longer exists. The newest duplicate is kept.
// The file is only rewritten when a repair was made, so a second run is a
// no-op.
func (m *Manager) ValidateAndRepair() (RepairResult, error) {
	idx, err := m.load()
	if err != nil {
		return RepairResult{}, err
	}

	res := RepairResult{Issues: []string{}}
	next := idx.clone()
	next.Archives = next.Archives[:0]
	seen := map[string]bool{}
	for _, e := range idx.Archives {
		if strings.TrimSpace(e.ArchivePath) == "" {
			res.Issues = append(res.Issues, fmt.Sprintf("entry for %q has no archive path", e.SpecName))
			res.MissingRemoved++
			continue
		}
		p := filepath.Clean(e.ArchivePath)
		if seen[p] {
			res.Issues = append(res.Issues, fmt.Sprintf("duplicate entry for %s", e.ArchivePath))
			res.DuplicatesRemoved++
			continue
		}
		seen[p] = true
		if !fsutil.Exists(m.fs, p) {
			res.Issues = append(res.Issues, fmt.Sprintf("archive path no longer exists: %s", e.ArchivePath))
			res.MissingRemoved++
			continue
		}
		next.Archives = append(next.Archives, e)
	}

	res.IsValid = len(res.Issues) == 0
	if res.IsValid {
		return res, nil
	}
	if err := m.commit(next); err != nil {
		return res, err
	}
	res.Repaired = true
	m.logger.Info("archive index repaired", "duplicates", res.DuplicatesRemoved, "missing", res.MissingRemoved)
	return res, nil
}
