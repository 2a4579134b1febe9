// Package index maintains the archive index: one JSON file listing every
// archived spec, newest first.
package index

import (
	"path/filepath"
	"time"
)

const (
	// FileName is the index file inside the archive root.
	FileName = ".archive-index.json"
	// MetadataFileName is written into every archive directory.
	MetadataFileName = ".archive-metadata.json"

	// Version is the index schema version.
	Version = "1.0"
	// MetadataVersion is the archive metadata schema version.
	MetadataVersion = "1.0"
)

// Entry is the index's record of one archived spec.
type Entry struct {
	SpecName       string    `json:"specName" yaml:"specName"`
	ArchivePath    string    `json:"archivePath" yaml:"archivePath"`
	CompletionDate time.Time `json:"completionDate" yaml:"completionDate"`
	ArchivalDate   time.Time `json:"archivalDate" yaml:"archivalDate"`
	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
}

// Index is the persisted container.
type Index struct {
	Version     string    `json:"version" yaml:"version"`
	LastUpdated time.Time `json:"lastUpdated" yaml:"lastUpdated"`
	Archives    []Entry   `json:"archives" yaml:"archives"`
}

func (idx *Index) clone() *Index {
	out := *idx
	out.Archives = append([]Entry(nil), idx.Archives...)
	return &out
}

// ArchiveMetadata describes one archival event. It is stored in the archive
// directory and projected into an index Entry.
type ArchiveMetadata struct {
	SchemaVersion  string    `json:"schemaVersion" yaml:"schemaVersion"`
	SpecName       string    `json:"specName" yaml:"specName"`
	SpecTitle      string    `json:"specTitle,omitempty" yaml:"specTitle,omitempty"`
	OriginalPath   string    `json:"originalPath" yaml:"originalPath"`
	ArchivePath    string    `json:"archivePath" yaml:"archivePath"`
	CompletionDate time.Time `json:"completionDate" yaml:"completionDate"`
	ArchivalDate   time.Time `json:"archivalDate" yaml:"archivalDate"`
	TotalTasks     int       `json:"totalTasks" yaml:"totalTasks"`
	CompletedTasks int       `json:"completedTasks" yaml:"completedTasks"`
	FileCount      int       `json:"fileCount" yaml:"fileCount"`
	TotalBytes     int64     `json:"totalBytes" yaml:"totalBytes"`
	Verification   string    `json:"verification" yaml:"verification"`
	// Digest is the blake3 tree digest when digest verification ran.
	Digest    string `json:"digest,omitempty" yaml:"digest,omitempty"`
	AttemptID string `json:"attemptId,omitempty" yaml:"attemptId,omitempty"`
}

// Entry projects the metadata onto an index entry.
func (m ArchiveMetadata) Entry() Entry {
	return Entry{
		SpecName:       m.SpecName,
		ArchivePath:    filepath.Clean(m.ArchivePath),
		CompletionDate: m.CompletionDate,
		ArchivalDate:   m.ArchivalDate,
		TotalTasks:     m.TotalTasks,
	}
}

// Stats summarizes the index.
type Stats struct {
	TotalArchives int        `json:"totalArchives" yaml:"totalArchives"`
	Oldest        *time.Time `json:"oldestArchive,omitempty" yaml:"oldestArchive,omitempty"`
	Newest        *time.Time `json:"newestArchive,omitempty" yaml:"newestArchive,omitempty"`
	TotalTasks    int        `json:"totalTasks" yaml:"totalTasks"`
}

// RepairResult reports what ValidateAndRepair found and fixed.
type RepairResult struct {
	IsValid           bool     `json:"isValid" yaml:"isValid"`
	Repaired          bool     `json:"repaired" yaml:"repaired"`
	Issues            []string `json:"issues" yaml:"issues"`
	DuplicatesRemoved int      `json:"duplicatesRemoved" yaml:"duplicatesRemoved"`
	MissingRemoved    int      `json:"missingRemoved" yaml:"missingRemoved"`
}
