package archive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/speckeeper/internal/config"
	"github.com/felixgeelhaar/speckeeper/internal/index"
)

type fileSummary struct {
	Size   int64
	Digest string
}

// treeSummary describes a directory tree well enough to compare two copies.
type treeSummary struct {
	Files map[string]fileSummary
	Bytes int64
}

// summarize walks root. Digests are only computed when withDigest is set.
// The archive metadata file is ignored so an archive can be compared with
// its source.
func summarize(ctx context.Context, fs afero.Fs, root string, withDigest bool) (treeSummary, error) {
	sum := treeSummary{Files: map[string]fileSummary{}}
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == index.MetadataFileName {
			return nil
		}
		fsum := fileSummary{Size: info.Size()}
		if withDigest && info.Mode().IsRegular() {
			d, err := digestFile(fs, path)
			if err != nil {
				return err
			}
			fsum.Digest = d
		}
		sum.Files[filepath.ToSlash(rel)] = fsum
		sum.Bytes += info.Size()
		return nil
	})
	return sum, err
}

func digestFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Digest combines per-file digests into one tree digest, independent of walk
// order.
func (t treeSummary) Digest() string {
	paths := make([]string, 0, len(t.Files))
	for p := range t.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	hasher := blake3.New()
	for _, p := range paths {
		_, _ = fmt.Fprintf(hasher, "%s\x00%d\x00%s\n", p, t.Files[p].Size, t.Files[p].Digest)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// compareTrees returns a description of every difference the verification
// mode cares about. An empty result means the copy is good.
func compareTrees(src, dst treeSummary, mode config.Verification) []string {
	var problems []string
	if len(src.Files) != len(dst.Files) {
		problems = append(problems, fmt.Sprintf("file count differs: source has %d, archive has %d", len(src.Files), len(dst.Files)))
	}
	if mode == config.VerifyCount {
		return problems
	}

	paths := make([]string, 0, len(src.Files))
	for p := range src.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		want := src.Files[p]
		got, ok := dst.Files[p]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%s missing from copy", p))
		case got.Size != want.Size:
			problems = append(problems, fmt.Sprintf("%s size differs: %d != %d", p, want.Size, got.Size))
		case mode == config.VerifyDigest && got.Digest != want.Digest:
			problems = append(problems, fmt.Sprintf("%s content differs", p))
		}
	}
	return problems
}

// verifyCopy summarizes both trees and compares them. It returns the
// destination summary for metadata and an integrity description on mismatch.
func verifyCopy(ctx context.Context, fs afero.Fs, src, dst string, mode config.Verification) (treeSummary, string, error) {
	withDigest := mode == config.VerifyDigest
	srcSum, err := summarize(ctx, fs, src, withDigest)
	if err != nil {
		return treeSummary{}, "", fmt.Errorf("read source tree: %w", err)
	}
	dstSum, err := summarize(ctx, fs, dst, withDigest)
	if err != nil {
		return treeSummary{}, "", fmt.Errorf("read archive tree: %w", err)
	}
	if problems := compareTrees(srcSum, dstSum, mode); len(problems) > 0 {
		return dstSum, strings.Join(problems, "; "), nil
	}
	return dstSum, "", nil
}
