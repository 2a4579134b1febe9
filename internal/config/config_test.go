package config

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/log"
)

const dir = "/project"

func newManager(fs afero.Fs) *Manager {
	return NewManager(fs, dir, log.Discard())
}

func readRaw(t *testing.T, fs afero.Fs) map[string]any {
	t.Helper()
	data, err := afero.ReadFile(fs, filepath.Join(dir, FileName))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	return raw
}

func TestLoadCreatesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	res, err := newManager(fs).Load()
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, Default(), res.Config)

	raw := readRaw(t, fs)
	assert.Equal(t, float64(CurrentVersion), raw["version"])
	assert.Equal(t, true, raw["enabled"])
	assert.Equal(t, "specs/archive", raw["location"])
}

func TestLoadCorruptFileResetsToDefaults(t *testing.T) {
	for name, content := range map[string]string{
		"garbage": "{not json",
		"array":   "[1,2,3]",
		"null":    "null",
	} {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, FileName), []byte(content), 0o644))

			res, err := newManager(fs).Load()
			require.NoError(t, err)
			assert.True(t, res.Reset)
			assert.Equal(t, Default(), res.Config)
			require.NotEmpty(t, res.Warnings)
			assert.Contains(t, res.Warnings[0], "corrupt")

			again, err := newManager(fs).Load()
			require.NoError(t, err)
			assert.False(t, again.Reset)
			assert.False(t, again.Migrated)
		})
	}
}

func TestLoadMigratesLegacyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	legacy := `{"autoArchive": "false", "archiveDelay": "30", "archivePath": " docs/archived "}`
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, FileName), []byte(legacy), 0o644))

	res, err := newManager(fs).Load()
	require.NoError(t, err)

	assert.True(t, res.Migrated)
	assert.Equal(t, ArchivalConfig{
		Version:      CurrentVersion,
		Enabled:      false,
		DelayMinutes: 30,
		Location:     "docs/archived",
		Verification: VerifySize,
	}, res.Config)
	assert.Contains(t, res.Warnings, "renamed legacy field autoArchive to enabled")
	assert.Contains(t, res.Warnings, "added missing field verification")
	assert.Contains(t, res.Warnings, "upgraded schema version 1 to 2")

	raw := readRaw(t, fs)
	assert.NotContains(t, raw, "archivePath")
	assert.Equal(t, "docs/archived", raw["location"])
}

func TestInspectDoesNotWrite(t *testing.T) {
	path := filepath.Join(dir, FileName)

	t.Run("missing", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		res, err := newManager(fs).Inspect()
		require.NoError(t, err)
		assert.True(t, res.Created)
		exists, _ := afero.Exists(fs, path)
		assert.False(t, exists)
	})

	t.Run("legacy", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		legacy := `{"archiveDelay": "30"}`
		require.NoError(t, afero.WriteFile(fs, path, []byte(legacy), 0o644))

		res, err := newManager(fs).Inspect()
		require.NoError(t, err)
		assert.True(t, res.Migrated)
		assert.Equal(t, 30, res.Config.DelayMinutes)

		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.Equal(t, legacy, string(data))
	})

	t.Run("corrupt", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, path, []byte("{oops"), 0o644))

		res, err := newManager(fs).Inspect()
		require.NoError(t, err)
		assert.True(t, res.Reset)
		data, _ := afero.ReadFile(fs, path)
		assert.Equal(t, "{oops", string(data))
	})
}

func TestMigrate(t *testing.T) {
	t.Run("current name wins over legacy", func(t *testing.T) {
		cfg, notes := Migrate(map[string]any{"version": 2, "location": "a", "archiveDir": "b", "enabled": true, "delayMinutes": 5, "verification": "count"})
		assert.Equal(t, "a", cfg.Location)
		assert.Equal(t, []string{"dropped legacy field archiveDir (superseded by location)"}, notes)
	})

	t.Run("hours converted", func(t *testing.T) {
		cfg, _ := Migrate(map[string]any{"archiveDelayHours": 2.5})
		assert.Equal(t, 150, cfg.DelayMinutes)
	})

	t.Run("bad values reset", func(t *testing.T) {
		cfg, notes := Migrate(map[string]any{"enabled": "maybe", "delayMinutes": -4, "verification": "CRC", "location": ""})
		assert.Equal(t, Default().Enabled, cfg.Enabled)
		assert.Equal(t, 0, cfg.DelayMinutes)
		assert.Equal(t, VerifySize, cfg.Verification)
		assert.Equal(t, Default().Location, cfg.Location)
		assert.NotEmpty(t, notes)
		assert.NoError(t, Validate(cfg))
	})

	t.Run("input untouched", func(t *testing.T) {
		raw := map[string]any{"autoArchive": true}
		_, _ = Migrate(raw)
		assert.Equal(t, map[string]any{"autoArchive": true}, raw)
	})

	t.Run("verification normalized", func(t *testing.T) {
		cfg, _ := Migrate(map[string]any{"verification": " Digest "})
		assert.Equal(t, VerifyDigest, cfg.Verification)
	})
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Default()))

	bad := ArchivalConfig{Version: 2, DelayMinutes: -1, Location: "  ", Verification: "crc"}
	err := Validate(bad)
	require.Error(t, err)

	cat, ok := errors.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfiguration, cat)

	problems := Problems(bad)
	assert.Contains(t, problems, "delayMinutes must be at least 0 (got -1)")
	assert.Contains(t, problems, "location is required")
	assert.Contains(t, problems, `verification must be one of count, size, digest (got "crc")`)

	tooLong := Default()
	tooLong.DelayMinutes = MaxDelayMinutes + 1
	assert.Error(t, Validate(tooLong))
}

func TestSaveRejectsInvalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := Default()
	cfg.Location = ""
	assert.Error(t, newManager(fs).Save(cfg))

	exists, _ := afero.Exists(fs, filepath.Join(dir, FileName))
	assert.False(t, exists)
}

// Saving a valid config and loading it back yields the same config with no
// migration notes.
func TestSaveLoadRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := ArchivalConfig{
			Version:      CurrentVersion,
			Enabled:      rapid.Bool().Draw(t, "enabled"),
			DelayMinutes: rapid.IntRange(0, MaxDelayMinutes).Draw(t, "delay"),
			Location:     rapid.StringMatching(`[a-z]{1,8}(/[a-z]{1,8}){0,2}`).Draw(t, "location"),
			Verification: rapid.SampledFrom([]Verification{VerifyCount, VerifySize, VerifyDigest}).Draw(t, "verification"),
		}

		m := newManager(afero.NewMemMapFs())
		if err := m.Save(cfg); err != nil {
			t.Fatalf("save: %v", err)
		}
		res, err := m.Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if res.Config != cfg {
			t.Fatalf("round trip changed config: %+v -> %+v", cfg, res.Config)
		}
		if res.Migrated || res.Created || res.Reset {
			t.Fatalf("unexpected load flags: %+v", res)
		}
	})
}

func TestSet(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newManager(fs)

	cfg, err := m.Set("delayMinutes", "45")
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.DelayMinutes)

	cfg, err = m.Set("autoArchive", "false")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)

	cfg, err = m.Set("verification", "DIGEST")
	require.NoError(t, err)
	assert.Equal(t, VerifyDigest, cfg.Verification)

	_, err = m.Set("delayMinutes", "-3")
	assert.Error(t, err)
	_, err = m.Set("color", "blue")
	assert.Error(t, err)
	_, err = m.Set("delayMinutes", "soon")
	assert.Error(t, err)

	res, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, 45, res.Config.DelayMinutes)
	assert.False(t, res.Config.Enabled)
}

func TestBackupAndRestore(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := newManager(fs)
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	_, err := m.Backup()
	assert.Error(t, err, "nothing to back up yet")

	original := Default()
	original.DelayMinutes = 10
	require.NoError(t, m.Save(original))

	first, err := m.Backup()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName)+".backup-20250601T100000.000Z", first)

	changed := original
	changed.DelayMinutes = 99
	require.NoError(t, m.Save(changed))
	clock = clock.Add(time.Hour)
	second, err := m.Backup()
	require.NoError(t, err)

	backups, err := m.ListBackups()
	require.NoError(t, err)
	assert.Equal(t, []string{second, first}, backups)

	restored, err := m.Restore(first)
	require.NoError(t, err)
	assert.Equal(t, 10, restored.DelayMinutes)

	latest, err := m.Restore("")
	require.NoError(t, err)
	assert.Equal(t, 99, latest.DelayMinutes)

	_, err = m.Restore(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestResolveLocation(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/project/specs/archive", cfg.ResolveLocation("/project"))
	cfg.Location = "/var/archive/"
	assert.Equal(t, "/var/archive", cfg.ResolveLocation("/project"))
	assert.Equal(t, 90*time.Minute, ArchivalConfig{DelayMinutes: 90}.Delay())
}
