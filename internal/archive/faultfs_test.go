package archive

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// faultFs wraps an afero.Fs and fails selected mutating operations. failAt
// fails the n-th mutating call (1-based); match fails every call it accepts;
// shorten drops the last byte of every write to files it accepts.
type faultFs struct {
	afero.Fs

	mu      sync.Mutex
	ops     int
	failAt  int
	match   func(op, name string) bool
	shorten func(name string) bool
}

func newFaultFs(base afero.Fs) *faultFs {
	return &faultFs{Fs: base}
}

func (f *faultFs) arm(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = 0
	f.failAt = n
}

func (f *faultFs) check(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.match != nil && f.match(op, name) {
		return &os.PathError{Op: op, Path: name, Err: fmt.Errorf("injected fault")}
	}
	if f.failAt > 0 {
		f.ops++
		if f.ops == f.failAt {
			return &os.PathError{Op: op, Path: name, Err: fmt.Errorf("injected fault at op %d", f.ops)}
		}
	}
	return nil
}

func (f *faultFs) Create(name string) (afero.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

func (f *faultFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		if err := f.check("open", name); err != nil {
			return nil, err
		}
	}
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	if f.shorten != nil && f.shorten(name) {
		return shortFile{file}, nil
	}
	return file, nil
}

func (f *faultFs) Open(name string) (afero.File, error) {
	if f.match != nil && f.match("read", name) {
		return nil, &os.PathError{Op: "read", Path: name, Err: fmt.Errorf("injected fault")}
	}
	return f.Fs.Open(name)
}

func (f *faultFs) Mkdir(name string, perm os.FileMode) error {
	if err := f.check("mkdir", name); err != nil {
		return err
	}
	return f.Fs.Mkdir(name, perm)
}

func (f *faultFs) MkdirAll(path string, perm os.FileMode) error {
	if err := f.check("mkdir", path); err != nil {
		return err
	}
	return f.Fs.MkdirAll(path, perm)
}

func (f *faultFs) Remove(name string) error {
	if err := f.check("remove", name); err != nil {
		return err
	}
	return f.Fs.Remove(name)
}

func (f *faultFs) RemoveAll(path string) error {
	if err := f.check("remove", path); err != nil {
		return err
	}
	return f.Fs.RemoveAll(path)
}

func (f *faultFs) Rename(oldname, newname string) error {
	if err := f.check("rename", newname); err != nil {
		return err
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *faultFs) Chmod(name string, mode os.FileMode) error {
	if err := f.check("chmod", name); err != nil {
		return err
	}
	return f.Fs.Chmod(name, mode)
}

func (f *faultFs) Chtimes(name string, atime, mtime time.Time) error {
	if err := f.check("chtimes", name); err != nil {
		return err
	}
	return f.Fs.Chtimes(name, atime, mtime)
}

// shortFile silently loses the last byte of every write.
type shortFile struct {
	afero.File
}

func (s shortFile) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := s.File.Write(p[:len(p)-1])
	if err != nil {
		return n, err
	}
	return len(p), nil
}
