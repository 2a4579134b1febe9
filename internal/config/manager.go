package config

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

const backupTimeFormat = "20060102T150405.000Z"

// LoadResult is a loaded policy plus what had to be done to produce it.
type LoadResult struct {
	Config ArchivalConfig `json:"config" yaml:"config"`
	// Warnings describe repairs and migrations applied during load.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Created  bool     `json:"created" yaml:"created"`
	Migrated bool     `json:"migrated" yaml:"migrated"`
	Reset    bool     `json:"reset" yaml:"reset"`
}

// Manager loads and persists the archival policy.
type Manager struct {
	fs     afero.Fs
	path   string
	logger *log.Logger
	now    func() time.Time
}

// NewManager creates a manager for <configDir>/.archival-config.json.
func NewManager(fs afero.Fs, configDir string, logger *log.Logger) *Manager {
	return &Manager{
		fs:     fs,
		path:   filepath.Join(configDir, FileName),
		logger: log.OrDefault(logger),
		now:    time.Now,
	}
}

// Path returns the policy file location.
func (m *Manager) Path() string {
	return m.path
}

// Load returns a valid policy. A missing or corrupt file is replaced by the
// defaults; an older or hand-edited file is migrated and written back. Load
// only fails when the file exists but cannot be read.
func (m *Manager) Load() (LoadResult, error) {
	res, err := m.Inspect()
	if err != nil {
		return res, err
	}
	switch {
	case res.Created:
		if err := m.Save(res.Config); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not write default config: %v", err))
			m.logger.WithError(err).Warn("could not write default archival config", "path", m.path)
		}
	case res.Reset:
		m.logger.Warn("archival config is corrupt, restoring defaults", "path", m.path, "reason", res.Warnings[0])
		if err := m.Save(res.Config); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not write default config: %v", err))
		}
	case res.Migrated:
		m.logger.Info("migrated archival config", "path", m.path, "changes", len(res.Warnings))
		if err := m.Save(res.Config); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("could not persist migrated config: %v", err))
		}
	}
	return res, nil
}

// Inspect reports what Load would produce without writing anything. Created
// means the file is missing and Reset that it is corrupt.
func (m *Manager) Inspect() (LoadResult, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return LoadResult{Config: Default()}, errors.Wrap(errors.ErrCodeConfigRead,
				fmt.Sprintf("failed to read %s", m.path), err)
		}
		return LoadResult{Config: Default(), Created: true}, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		reason := "not a JSON object"
		if err != nil {
			reason = err.Error()
		}
		return LoadResult{
			Config:   Default(),
			Reset:    true,
			Warnings: []string{fmt.Sprintf("config file is corrupt (%s); defaults restored", reason)},
		}, nil
	}

	cfg, notes := Migrate(raw)
	return LoadResult{Config: cfg, Warnings: notes, Migrated: len(notes) > 0}, nil
}

// Save validates cfg and writes it as indented JSON.
func (m *Manager) Save(cfg ArchivalConfig) error {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigWrite, "failed to marshal config", err)
	}
	if err := fsutil.WriteFileAtomic(m.fs, m.path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeConfigWrite, fmt.Sprintf("failed to write %s", m.path), err)
	}
	return nil
}

// Set changes one field by its JSON name (or a legacy alias), validates the
// result and saves it.
func (m *Manager) Set(key, value string) (ArchivalConfig, error) {
	res, err := m.Load()
	if err != nil {
		return ArchivalConfig{}, err
	}

	if current, ok := legacyKeys[key]; ok {
		key = current
	}
	known := false
	for _, k := range knownKeys {
		if k == key {
			known = true
		}
	}
	if !known || key == "version" {
		return ArchivalConfig{}, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("unknown config key %q", key)).
			WithSuggestion(fmt.Sprintf("Settable keys: %s", strings.Join(knownKeys[1:], ", ")))
	}

	updated := res.Config
	if err := weakDecode(map[string]any{key: value}, &updated); err != nil {
		return ArchivalConfig{}, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("invalid value for %s", key), err)
	}
	if key == "verification" {
		updated.Verification = Verification(strings.ToLower(string(updated.Verification)))
	}
	if err := m.Save(updated); err != nil {
		return ArchivalConfig{}, err
	}
	return updated, nil
}

// Backup copies the current file to a timestamped sibling and returns its
// path.
func (m *Manager) Backup() (string, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFoundError(m.path)
		}
		return "", errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to read %s", m.path), err)
	}
	dest := fmt.Sprintf("%s.backup-%s", m.path, m.now().UTC().Format(backupTimeFormat))
	if err := afero.WriteFile(m.fs, dest, data, 0o644); err != nil {
		return "", errors.Wrap(errors.ErrCodeConfigWrite, fmt.Sprintf("failed to write %s", dest), err)
	}
	return dest, nil
}

// ListBackups returns backup paths, newest first.
func (m *Manager) ListBackups() ([]string, error) {
	dir := filepath.Dir(m.path)
	entries, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to list %s", dir), err)
	}

	prefix := FileName + ".backup-"
	backups := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}
	// timestamps sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// Restore replaces the policy with a backup, the most recent one when
// backupPath is empty. The backup is migrated and validated before it is
// written.
func (m *Manager) Restore(backupPath string) (ArchivalConfig, error) {
	if backupPath == "" {
		backups, err := m.ListBackups()
		if err != nil {
			return ArchivalConfig{}, err
		}
		if len(backups) == 0 {
			return ArchivalConfig{}, errors.New(errors.ErrCodeFileNotFound, "no config backups found").
				WithSuggestion("Create one with 'speckeeper config backup'")
		}
		backupPath = backups[0]
	}

	data, err := afero.ReadFile(m.fs, backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ArchivalConfig{}, errors.NewFileNotFoundError(backupPath)
		}
		return ArchivalConfig{}, errors.Wrap(errors.ErrCodeConfigRead, fmt.Sprintf("failed to read %s", backupPath), err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return ArchivalConfig{}, errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("backup %s is not a valid config", backupPath))
	}
	cfg, _ := Migrate(raw)
	if err := m.Save(cfg); err != nil {
		return ArchivalConfig{}, err
	}
	m.logger.Info("restored archival config", "from", backupPath)
	return cfg, nil
}
