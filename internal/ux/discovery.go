package ux

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// Markers that identify a project root, checked in order in every
// directory on the way up.
const (
	StateDirName = ".speckeeper"
	SpecsDirName = "specs"
	gitDirName   = ".git"
)

// Discovery is the result of walking up from the working directory.
type Discovery struct {
	Root   string
	Marker string
	Found  bool
}

// DiscoverProjectRoot walks from start towards the filesystem root and
// returns the first directory holding a .speckeeper or specs directory.
// The walk stops at a git root, which counts as a project root itself.
// When nothing matches, start is returned with Found unset.
func DiscoverProjectRoot(fs afero.Fs, start string) (Discovery, error) {
	start, err := filepath.Abs(start)
	if err != nil {
		return Discovery{}, err
	}

	dir := start
	for {
		for _, marker := range []string{StateDirName, SpecsDirName, gitDirName} {
			if isDir(fs, filepath.Join(dir, marker)) {
				return Discovery{Root: dir, Marker: marker, Found: true}, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Discovery{Root: start}, nil
		}
		dir = parent
	}
}

func isDir(fs afero.Fs, path string) bool {
	ok, err := afero.IsDir(fs, path)
	return err == nil && ok
}

// SuggestNextSteps names the command to run next for a project whose specs
// directory is specsDir.
func SuggestNextSteps(fs afero.Fs, specsDir string) string {
	if !isDir(fs, specsDir) {
		return "Create " + specsDir + " with one directory per spec, or pass --specs-dir"
	}
	entries, err := afero.ReadDir(fs, specsDir)
	if err != nil {
		return "Check that " + specsDir + " is readable"
	}
	for _, e := range entries {
		if e.IsDir() && e.Name() != "archive" && e.Name()[0] != '.' {
			return "Run 'speckeeper archive --all --dry-run' to see what is ready to archive"
		}
	}
	return "Add a spec directory with requirements.md, design.md and tasks.md under " + specsDir
}
