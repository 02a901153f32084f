package main

import (
	"fmt"
)

const (
	// The host rejects files of 100MB and up; 95MB leaves headroom.
	DefaultChunkSize = 1024 * 1024 * 95
	// Merge reads are independent of the split size and only bound memory.
	DefaultMergeBufferSize = 1024 * 1024 * 100
	DefaultDestRoot        = "."
	DefaultS3Region        = "us-east-1"
)

// Config carries every tunable used by the split, merge, sync and publish
// operations. It is built once from the command line and passed down; nothing
// reads process-wide state.
type Config struct {
	ChunkSize       int64
	MergeBufferSize int64
	// WriteRecord makes SplitFile emit a <name>.split record next to the chunks.
	WriteRecord bool

	DestRoot string
	// RateLimit caps download throughput in bytes per second. Zero disables it.
	RateLimit int64

	S3Region   string
	S3Endpoint string
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:       DefaultChunkSize,
		MergeBufferSize: DefaultMergeBufferSize,
		DestRoot:        DefaultDestRoot,
		S3Region:        DefaultS3Region,
	}
}

func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %v", c.ChunkSize)
	}
	if c.MergeBufferSize <= 0 {
		return fmt.Errorf("merge buffer size must be positive, got %v", c.MergeBufferSize)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.DestRoot == "" {
		return fmt.Errorf("destination root must not be empty")
	}
	return nil
}
