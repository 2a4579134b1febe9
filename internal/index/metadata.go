package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
	"github.com/felixgeelhaar/speckeeper/internal/fsutil"
)

// MetadataPath returns the metadata file location inside an archive
// directory.
func MetadataPath(archiveDir string) string {
	return filepath.Join(archiveDir, MetadataFileName)
}

// HasMetadata reports whether archiveDir carries a metadata file.
func HasMetadata(fs afero.Fs, archiveDir string) bool {
	return fsutil.Exists(fs, MetadataPath(archiveDir))
}

// WriteMetadata writes meta into archiveDir and syncs it before returning.
func WriteMetadata(fs afero.Fs, archiveDir string, meta ArchiveMetadata) error {
	if meta.SchemaVersion == "" {
		meta.SchemaVersion = MetadataVersion
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeArchiveMetadata, "failed to marshal archive metadata", err)
	}
	if err := fsutil.WriteFileAtomic(fs, MetadataPath(archiveDir), append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeArchiveMetadata, fmt.Sprintf("failed to write metadata in %s", archiveDir), err)
	}
	return nil
}

// ReadMetadata loads the metadata file from archiveDir.
func ReadMetadata(fs afero.Fs, archiveDir string) (ArchiveMetadata, error) {
	path := MetadataPath(archiveDir)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return ArchiveMetadata{}, errors.NewFileNotFoundError(path)
		}
		return ArchiveMetadata{}, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	var meta ArchiveMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return ArchiveMetadata{}, errors.Wrap(errors.ErrCodeArchiveMetadata, fmt.Sprintf("malformed metadata in %s", archiveDir), err)
	}
	if meta.ArchivePath == "" {
		meta.ArchivePath = archiveDir
	}
	return meta, nil
}
