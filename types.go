package main

import (
	"errors"
)

var (
	ErrSourceUnreadable = errors.New("source file unreadable")
	ErrNotDirectory     = errors.New("not a valid directory")
	ErrNoArchive        = errors.New("no valid zip file")
	ErrAmbiguousArchive = errors.New("more than one zip file")
	ErrMixedChunkSets   = errors.New("directory holds more than one chunk set")
	ErrStrayArchive     = errors.New("zip file found alongside chunks")
	ErrRecordMismatch   = errors.New("chunks do not match split record")
	ErrUnsafeEntry      = errors.New("archive entry escapes destination")
	ErrAlreadyPublished = errors.New("chunks already published")
)

// reportable errors are printed by the CLI without failing the process.
func reportable(err error) bool {
	return errors.Is(err, ErrSourceUnreadable) ||
		errors.Is(err, ErrNotDirectory) ||
		errors.Is(err, ErrNoArchive)
}

// splitRecord is the optional <name>.split sidecar describing a chunk set.
type splitRecord struct {
	Size      int64 `json:"e"`
	ChunkSize int64 `json:"c"`
	Count     int   `json:"n"`
}

type SplitResult struct {
	Chunks []string
	Size   int64
}

type MergeResult struct {
	// Archive is empty when the directory held no chunks.
	Archive  string
	Consumed int
	Size     int64
	// Leftover lists chunks that were not merged because of an index gap.
	Leftover []string
}

// Section is one [folder] header of a dependency manifest and its URLs.
type Section struct {
	Folder string
	URLs   []string
}
