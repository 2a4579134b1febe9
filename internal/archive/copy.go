package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// copyStats counts what copyTree wrote.
type copyStats struct {
	Files int
	Dirs  int
	Bytes int64
}

type copiedDir struct {
	path string
	info os.FileInfo
}

// copyTree mirrors src into dst, which must not exist. Each file keeps its
// permission bits and access and modification times. Directory times are
// applied last, deepest first, so writing children does not disturb them.
func copyTree(ctx context.Context, fs afero.Fs, src, dst string) (copyStats, error) {
	var stats copyStats
	var dirs []copiedDir

	if _, err := fs.Stat(dst); err == nil {
		return stats, fmt.Errorf("destination %s already exists", dst)
	}

	err := afero.Walk(fs, src, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			if err := fs.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			stats.Dirs++
			dirs = append(dirs, copiedDir{path: target, info: info})
		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(fs, path, target); err != nil {
				return err
			}
			stats.Files++
		case info.Mode().IsRegular():
			n, err := copyFile(fs, path, target, info)
			if err != nil {
				return err
			}
			stats.Files++
			stats.Bytes += n
		default:
			return fmt.Errorf("unsupported file type %s at %s", info.Mode().Type(), path)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	// deepest first
	sort.SliceStable(dirs, func(i, j int) bool { return len(dirs[i].path) > len(dirs[j].path) })
	for _, d := range dirs {
		if err := fs.Chmod(d.path, d.info.Mode().Perm()); err != nil {
			return stats, fmt.Errorf("set mode on %s: %w", d.path, err)
		}
		if err := fs.Chtimes(d.path, accessTime(d.info), d.info.ModTime()); err != nil {
			return stats, fmt.Errorf("set times on %s: %w", d.path, err)
		}
	}
	return stats, nil
}

func copyFile(fs afero.Fs, src, dst string, info os.FileInfo) (int64, error) {
	in, err := fs.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return n, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return n, fmt.Errorf("sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close %s: %w", dst, err)
	}

	// OpenFile is subject to the umask
	if err := fs.Chmod(dst, info.Mode().Perm()); err != nil {
		return n, fmt.Errorf("set mode on %s: %w", dst, err)
	}
	if err := fs.Chtimes(dst, accessTime(info), info.ModTime()); err != nil {
		return n, fmt.Errorf("set times on %s: %w", dst, err)
	}
	return n, nil
}

func copySymlink(fs afero.Fs, src, dst string) error {
	reader, ok := fs.(afero.LinkReader)
	if !ok {
		return fmt.Errorf("filesystem cannot read symlink %s", src)
	}
	linker, ok := fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("filesystem cannot create symlink %s", dst)
	}
	target, err := reader.ReadlinkIfPossible(src)
	if err != nil {
		return fmt.Errorf("read symlink %s: %w", src, err)
	}
	if err := linker.SymlinkIfPossible(target, dst); err != nil {
		return fmt.Errorf("create symlink %s: %w", dst, err)
	}
	return nil
}
