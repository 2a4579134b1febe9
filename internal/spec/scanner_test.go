package spec

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/log"
)

const root = "/project/specs"

func writeSpec(t *testing.T, fs afero.Fs, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	for f, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, f), []byte(content), 0o644))
	}
}

func fullSpec(title, tasks string) map[string]string {
	return map[string]string{
		RequirementsFile: "# " + title + "\n\nRequirements.\n",
		DesignFile:       "# Design\n",
		TasksFile:        tasks,
	}
}

func newScanner(fs afero.Fs) *Scanner {
	return NewScanner(fs, root, WithLogger(log.Discard()))
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "beta", fullSpec("Beta", "- [ ] 1. Open\n"))
	writeSpec(t, fs, "alpha", map[string]string{RequirementsFile: "# Alpha\n"})
	writeSpec(t, fs, "archive", fullSpec("Old", "- [x] 1. Done\n"))
	writeSpec(t, fs, ".alpha.archiving-123", fullSpec("Staged", "- [x] 1. Done\n"))
	require.NoError(t, fs.MkdirAll(filepath.Join(root, "assets"), 0o755))

	names, err := newScanner(fs).Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestDiscoverCustomArchiveDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "archive", fullSpec("Not an archive here", "- [ ] 1. Open\n"))
	writeSpec(t, fs, "done", fullSpec("Done", "- [x] 1. Done\n"))

	s := NewScanner(fs, root, WithLogger(log.Discard()), WithArchiveDir(filepath.Join(root, "done")))
	names, err := s.Discover()
	require.NoError(t, err)
	assert.Equal(t, []string{"archive"}, names)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := newScanner(afero.NewMemMapFs()).Discover()
	require.Error(t, err)

	cat, ok := errors.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryFileNotFound, cat)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "auth", fullSpec("User Authentication", "- [x] 1. Setup\n- [ ] 2. Build\n"))
	writeSpec(t, fs, "untitled", map[string]string{TasksFile: "- [x] 1. Only\n"})

	s := newScanner(fs)
	sp, err := s.Load("auth")
	require.NoError(t, err)
	assert.Equal(t, "User Authentication", sp.Title)
	assert.Equal(t, 2, sp.TotalTasks)
	assert.Equal(t, 1, sp.CompletedTasks)
	assert.Equal(t, 50, sp.Percentage)
	assert.False(t, sp.IsComplete)
	assert.NotEmpty(t, sp.RequirementsPath)
	assert.NotEmpty(t, sp.DesignPath)
	assert.NotEmpty(t, sp.TasksPath)

	other, err := s.Load("untitled")
	require.NoError(t, err)
	assert.Equal(t, "untitled", other.Title)
	assert.Empty(t, other.RequirementsPath)
	assert.True(t, other.IsComplete)

	_, err = s.Load("nope")
	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeSpecNotFound, code)
}

func TestLoadRejectsNamesOutsideRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "../outside", fullSpec("Outside", "- [x] 1. Done\n"))
	writeSpec(t, fs, "archive", fullSpec("Archive", "- [x] 1. Done\n"))
	s := newScanner(fs)

	for _, name := range []string{"../outside", "..", ".", "", ".git", "a/b", `a\b`, "archive"} {
		_, err := s.Load(name)
		code, ok := errors.CodeOf(err)
		require.True(t, ok, "name %q: %v", name, err)
		assert.Equal(t, errors.ErrCodeSpecNameInvalid, code, "name %q", name)
	}
	assert.NoError(t, CheckName("auth-v2"))
}

func TestValidateSpec(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "good", fullSpec("Good", "- [x] 1. Done\n"))
	writeSpec(t, fs, "no-tasks", map[string]string{RequirementsFile: "# R\n", DesignFile: "# D\n"})
	writeSpec(t, fs, "bare", map[string]string{TasksFile: "- [x] 1. Done\n", "notes.txt": "x"})
	writeSpec(t, fs, "broken", fullSpec("Broken", "- [x] 1. Done\n- [ ]\n"))

	s := newScanner(fs)

	good := s.ValidateSpec(filepath.Join(root, "good"))
	assert.True(t, good.Valid)
	assert.Empty(t, good.Issues)
	assert.Empty(t, good.Warnings)

	noTasks := s.ValidateSpec(filepath.Join(root, "no-tasks"))
	assert.False(t, noTasks.Valid)
	assert.Contains(t, noTasks.Issues, "missing required file tasks.md")

	bare := s.ValidateSpec(filepath.Join(root, "bare"))
	assert.True(t, bare.Valid)
	assert.Contains(t, bare.Warnings, "missing recommended file requirements.md")
	assert.Contains(t, bare.Warnings, "missing recommended file design.md")
	assert.Contains(t, bare.Warnings, "unexpected file notes.txt")

	broken := s.ValidateSpec(filepath.Join(root, "broken"))
	assert.False(t, broken.Valid)
	require.Len(t, broken.Issues, 1)
	assert.Contains(t, broken.Issues[0], "no task title")

	missing := s.ValidateSpec(filepath.Join(root, "ghost"))
	assert.False(t, missing.Valid)
}

func TestReadyForArchival(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "done", fullSpec("Done", "- [x] 1. Setup\n- [x] 2. Build\n"))
	writeSpec(t, fs, "open", fullSpec("Open", "- [x] 1. Setup\n- [ ] 2. Build\n"))
	writeSpec(t, fs, "empty", fullSpec("Empty", "# Tasks\n"))
	writeSpec(t, fs, "malformed", fullSpec("Malformed", "- [x] 1. Setup\n- [x]\n"))

	s := newScanner(fs)

	ready, err := s.ReadyForArchival()
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "done", ready[0].Name)

	complete, err := s.CompleteSpecs()
	require.NoError(t, err)
	names := []string{}
	for _, sp := range complete {
		names = append(names, sp.Name)
	}
	assert.ElementsMatch(t, []string{"done", "malformed"}, names)

	incomplete, err := s.IncompleteSpecs()
	require.NoError(t, err)
	assert.Len(t, incomplete, 2)
}

func TestScanAndValidateAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "done", fullSpec("Done", "- [x] 1. Setup\n"))
	writeSpec(t, fs, "broken", map[string]string{RequirementsFile: "# R\n"})

	report, err := newScanner(fs).ScanAndValidateAll()
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalSpecs)
	assert.Equal(t, []string{"done"}, report.ValidSpecs)
	assert.Equal(t, []string{"broken"}, report.InvalidSpecs)
	assert.Contains(t, report.Issues["broken"], "missing required file tasks.md")
	assert.Equal(t, []string{"done"}, report.CompleteSpecs)
	assert.Equal(t, []string{"done"}, report.ReadySpecs)
}

func TestScanAllCrossSpecReferences(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "billing", fullSpec("Billing", "- [ ] 1. Charge\n  _Dependencies: auth, #2, spec:ghost_\n"))
	writeSpec(t, fs, "reports", fullSpec("Reports", "- [ ] 1. Export\n  _Dependencies: spec:billing, auth_\n"))
	writeSpec(t, fs, "auth", fullSpec("Auth", "- [x] 1. Login\n"))

	specs, err := newScanner(fs).ScanAll()
	require.NoError(t, err)

	byName := map[string]*Spec{}
	for _, sp := range specs {
		byName[sp.Name] = sp
	}
	assert.Equal(t, []string{"auth"}, byName["billing"].Dependencies)
	assert.Equal(t, []string{"auth", "billing"}, byName["reports"].Dependencies)
	assert.Equal(t, []string{"billing", "reports"}, byName["auth"].Dependents)
	assert.Equal(t, []string{"reports"}, byName["billing"].Dependents)
}

func TestParseTasks(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeSpec(t, fs, "auth", fullSpec("Auth", "- [x] 1. Login\n  - [ ] 1.1. Remember me\n"))

	s := newScanner(fs)
	res, err := s.ParseTasks("auth")
	require.NoError(t, err)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, "auth-1.1", res.Tasks[1].ID)

	_, err = s.ParseTasks("missing")
	assert.Error(t, err)
}
