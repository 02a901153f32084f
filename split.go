package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
)

const recordSuffix = ".split"

// chunkCount is the number of chunks a source of size bytes splits into.
// An empty source still maps to one empty chunk.
func chunkCount(size, chunkSize int64) int {
	n := size / chunkSize
	if size%chunkSize != 0 || n == 0 {
		n++
	}
	return int(n)
}

// forEachChunk hands fn a section of r for every chunk of a source of size
// bytes, in order. The final section may be short. Nothing is buffered, so
// chunkSize may be far larger than size.
func forEachChunk(r io.ReaderAt, size, chunkSize int64, fn func(index int, section *io.SectionReader) error) (int, error) {
	count := chunkCount(size, chunkSize)
	for i := 0; i < count; i++ {
		offset := int64(i) * chunkSize
		n := size - offset
		if n > chunkSize {
			n = chunkSize
		}
		if err := fn(i, io.NewSectionReader(r, offset, n)); err != nil {
			return i, err
		}
	}
	return count, nil
}

func writeChunk(name string, section *io.SectionReader) error {
	out, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, section); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func chunkName(stem string, index int) string {
	return stem + strconv.Itoa(index)
}

// SplitFile writes file as a sequence of chunks named <file>0, <file>1, ...
// each at most cfg.ChunkSize bytes. Existing chunks with the same names are
// overwritten.
func SplitFile(file string, cfg Config) (SplitResult, error) {
	var res SplitResult
	fd, err := os.Open(file)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer fd.Close()
	info, err := fd.Stat()
	if err != nil || info.IsDir() {
		return res, fmt.Errorf("%w: %v is not a regular file", ErrSourceUnreadable, file)
	}
	log.Printf("Splitting file %v", file)

	size := info.Size()
	count, err := forEachChunk(fd, size, cfg.ChunkSize, func(index int, section *io.SectionReader) error {
		name := chunkName(file, index)
		if err := writeChunk(name, section); err != nil {
			return fmt.Errorf("error writing chunk %v: %w", name, err)
		}
		log.Printf("Writing file %v", name)
		res.Chunks = append(res.Chunks, name)
		return nil
	})
	if err != nil {
		return res, err
	}
	res.Size = size

	if cfg.WriteRecord {
		body, err := json.Marshal(splitRecord{Size: size, ChunkSize: cfg.ChunkSize, Count: count})
		if err != nil {
			return res, err
		}
		if err := os.WriteFile(file+recordSuffix, body, 0644); err != nil {
			return res, fmt.Errorf("error writing split record: %w", err)
		}
	}
	return res, nil
}
