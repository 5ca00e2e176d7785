package models

import "time"

// ArchiveResult holds the result of building one archive.
type ArchiveResult struct {
	Name        string
	FilesAdded  int
	BytesRead   int64
	SizeBytes   int64
	Checksum    string   // hex BLAKE2b-256 of the archive file
	SkippedDirs []string // source directories that were missing
	Verified    bool
	Duration    time.Duration
	Error       error
}

// RunReport summarizes a whole backup run.
type RunReport struct {
	Results  []ArchiveResult
	Failed   int
	Duration time.Duration
}
