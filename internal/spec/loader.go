package spec

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/completion"
	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
	"github.com/felixgeelhaar/speckeeper/internal/log"
	"github.com/felixgeelhaar/speckeeper/internal/markdown"
)

// Repository discovers and loads specs from a specs root.
// This interface lets the archival engine run against fakes in tests.
type Repository interface {
	// Root returns the specs root directory
	Root() string

	// Discover returns the names of all spec directories, sorted
	Discover() ([]string, error)

	// Load builds the Spec for one directory name
	Load(name string) (*Spec, error)

	// ValidateSpec checks the structure of a spec directory
	ValidateSpec(path string) ValidationResult

	// ReadyForArchival returns complete and valid specs
	ReadyForArchival() ([]*Spec, error)

	// ScanAndValidateAll builds the aggregate validation report
	ScanAndValidateAll() (*Report, error)
}

// Scanner implements Repository on an afero filesystem.
type Scanner struct {
	fs         afero.Fs
	root       string
	archiveDir string
	maxDepth   int
	detector   *completion.Detector
	logger     *log.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithArchiveDir excludes the archive location from discovery.
func WithArchiveDir(dir string) Option {
	return func(s *Scanner) { s.archiveDir = filepath.Clean(dir) }
}

// WithLogger sets the scanner's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithMaxDepth sets the task nesting limit used when tasks are parsed.
func WithMaxDepth(depth int) Option {
	return func(s *Scanner) { s.maxDepth = depth }
}

// NewScanner creates a scanner over root. Unless overridden the archive
// directory is root/archive.
func NewScanner(fs afero.Fs, root string, opts ...Option) *Scanner {
	s := &Scanner{
		fs:         fs,
		root:       filepath.Clean(root),
		archiveDir: filepath.Join(filepath.Clean(root), "archive"),
		maxDepth:   markdown.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger)
	s.detector = completion.NewDetector(fs, s.logger)
	return s
}

// Root returns the specs root directory.
func (s *Scanner) Root() string {
	return s.root
}

// Path returns the directory for a spec name.
func (s *Scanner) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Detector returns the completion detector the scanner uses.
func (s *Scanner) Detector() *completion.Detector {
	return s.detector
}

// Discover lists spec directories under the root. Hidden directories, the
// archive directory and directories without any spec document are skipped.
func (s *Scanner) Discover() ([]string, error) {
	if !fsutil.IsDir(s.fs, s.root) {
		return nil, errors.NewSpecsRootNotFoundError(s.root)
	}

	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, fmt.Sprintf("failed to list %s", s.root), err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		if dir == s.archiveDir {
			continue
		}
		if !s.looksLikeSpec(dir) {
			s.logger.Debug("skipping directory without spec documents", "dir", dir)
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (s *Scanner) looksLikeSpec(dir string) bool {
	for _, f := range []string{RequirementsFile, DesignFile, TasksFile} {
		if fsutil.Exists(s.fs, filepath.Join(dir, f)) {
			return true
		}
	}
	return false
}

// CheckName reports whether name can denote a spec directory: a single path
// element that is neither empty nor hidden. Dot directories are never
// discovered, so "." and ".." are rejected with them.
func CheckName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return errors.NewSpecNameInvalidError(name)
	}
	return nil
}

// Load builds the Spec for a directory under the root. Cross-spec references
// are resolved only by ScanAll.
func (s *Scanner) Load(name string) (*Spec, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	dir := s.Path(name)
	if dir == s.archiveDir {
		return nil, errors.NewSpecNameInvalidError(name)
	}
	if !fsutil.IsDir(s.fs, dir) {
		return nil, errors.NewSpecNotFoundError(dir)
	}

	sp := &Spec{Name: name, Title: name, Path: dir}
	if p := filepath.Join(dir, RequirementsFile); fsutil.Exists(s.fs, p) {
		sp.RequirementsPath = p
		if data, err := afero.ReadFile(s.fs, p); err == nil {
			if h := markdown.FirstHeading(data); h != "" {
				sp.Title = h
			}
		}
	}
	if p := filepath.Join(dir, DesignFile); fsutil.Exists(s.fs, p) {
		sp.DesignPath = p
	}

	st := s.detector.CheckCompletion(dir)
	if st.Found {
		sp.TasksPath = st.TasksPath
	}
	sp.TotalTasks = st.TotalTasks
	sp.CompletedTasks = st.CompletedTasks
	sp.Percentage = st.Percentage
	sp.IsComplete = st.IsComplete
	sp.LastModified = st.LastModified
	if sp.LastModified.IsZero() {
		if info, err := s.fs.Stat(dir); err == nil {
			sp.LastModified = info.ModTime()
		}
	}
	return sp, nil
}

// ParseTasks runs the full task parser over a spec's tasks document.
func (s *Scanner) ParseTasks(name string) (markdown.Result, error) {
	path := filepath.Join(s.Path(name), TasksFile)
	if !fsutil.Exists(s.fs, path) {
		return markdown.Result{}, errors.NewFileNotFoundError(path)
	}
	return markdown.ParseFile(s.fs, path, markdown.Options{SpecName: name, MaxDepth: s.maxDepth}, s.logger)
}

// Compile-time verification that Scanner implements Repository
var _ Repository = (*Scanner)(nil)
