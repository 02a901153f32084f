package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// A chunk name is a stem ending in "zip" followed by a decimal index without
// leading zeros, e.g. "engine.zip0", "engine.zip12".
var chunkPattern = regexp.MustCompile(`^(.*zip)(0|[1-9][0-9]*)$`)

func parseChunkName(name string) (string, int, bool) {
	m := chunkPattern.FindStringSubmatch(name)
	if m == nil {
		return "", 0, false
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], index, true
}

// archiveName maps a chunk stem to the archive it reconstitutes:
// "engine.zip" -> "engine.zip", "enginezip" -> "engine.zip".
func archiveName(stem string) string {
	return strings.TrimSuffix(strings.TrimSuffix(stem, "zip"), ".") + ".zip"
}

// isArchive matches the lowercase ".zip" suffix only, the same case rule
// chunkPattern applies to chunk names.
func isArchive(name string) bool {
	return strings.HasSuffix(name, ".zip")
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w %q", ErrNotDirectory, dir)
	}
	return nil
}

type chunkSet struct {
	stem     string
	byIndex  map[int]string
	archives []string
}

func scanChunks(dir string) (chunkSet, error) {
	set := chunkSet{byIndex: make(map[int]string)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return set, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if isArchive(name) {
			set.archives = append(set.archives, name)
			continue
		}
		stem, index, ok := parseChunkName(name)
		if !ok {
			continue
		}
		if set.stem != "" && set.stem != stem {
			return set, fmt.Errorf("%w: %v and %v in %v", ErrMixedChunkSets, set.stem, stem, dir)
		}
		set.stem = stem
		set.byIndex[index] = name
	}
	return set, nil
}

// contiguous splits the chunk set into the run 0..n-1 and whatever lies past
// the first gap.
func (s chunkSet) contiguous() ([]string, []string) {
	indices := make([]int, 0, len(s.byIndex))
	for i := range s.byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	run := []string{}
	leftover := []string{}
	for pos, i := range indices {
		if i == pos && len(leftover) == 0 {
			run = append(run, s.byIndex[i])
		} else {
			leftover = append(leftover, s.byIndex[i])
		}
	}
	return run, leftover
}

func checkRecord(dir, recordPath string, run []string) error {
	body, err := os.ReadFile(recordPath)
	if err != nil {
		return err
	}
	var rec splitRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return fmt.Errorf("%w: %v", ErrRecordMismatch, err)
	}
	if rec.Count != len(run) {
		return fmt.Errorf("%w: expected %v chunks, found %v", ErrRecordMismatch, rec.Count, len(run))
	}
	total := int64(0)
	for i, name := range run {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		last := i == len(run)-1
		if info.Size() > rec.ChunkSize || (!last && info.Size() != rec.ChunkSize) {
			return fmt.Errorf("%w: %v is %v bytes, chunk size is %v", ErrRecordMismatch, name, info.Size(), rec.ChunkSize)
		}
		total += info.Size()
	}
	if total != rec.Size {
		return fmt.Errorf("%w: expected %v bytes, found %v", ErrRecordMismatch, rec.Size, total)
	}
	return nil
}

// mergeBufferSize caps limit at the largest chunk in run, and is never zero.
func mergeBufferSize(dir string, run []string, limit int64) (int64, error) {
	largest := int64(1)
	for _, name := range run {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return 0, err
		}
		if info.Size() > largest {
			largest = info.Size()
		}
	}
	if limit > 0 && limit < largest {
		return limit, nil
	}
	return largest, nil
}

// MergeChunks concatenates the chunk set in dir, in ascending index order,
// into a single archive and deletes the consumed chunks. Merging stops at the
// first missing index; chunks past the gap stay on disk.
func MergeChunks(dir string, cfg Config) (MergeResult, error) {
	var res MergeResult
	if err := checkDir(dir); err != nil {
		return res, err
	}
	set, err := scanChunks(dir)
	if err != nil {
		return res, err
	}
	if len(set.byIndex) == 0 {
		return res, nil
	}
	target := archiveName(set.stem)
	for _, name := range set.archives {
		if name != target {
			return res, fmt.Errorf("%w: %v in %v", ErrStrayArchive, name, dir)
		}
	}
	run, leftover := set.contiguous()
	res.Leftover = leftover
	if len(leftover) > 0 {
		log.Printf("Chunk index gap in %v, leaving %v unmerged", dir, strings.Join(leftover, ", "))
	}
	if len(run) == 0 {
		return res, nil
	}

	recordPath := filepath.Join(dir, set.stem+recordSuffix)
	hasRecord := false
	if _, err := os.Stat(recordPath); err == nil {
		hasRecord = true
		if err := checkRecord(dir, recordPath, run); err != nil {
			return res, err
		}
	}

	res.Archive = filepath.Join(dir, target)
	out, err := os.Create(res.Archive)
	if err != nil {
		return res, fmt.Errorf("error creating file %v: %w", res.Archive, err)
	}
	defer out.Close()

	bufSize, err := mergeBufferSize(dir, run, cfg.MergeBufferSize)
	if err != nil {
		return res, err
	}
	buf := make([]byte, bufSize)
	for _, name := range run {
		log.Printf("Merging file %v", name)
		chunkPath := filepath.Join(dir, name)
		in, err := os.Open(chunkPath)
		if err != nil {
			return res, fmt.Errorf("error opening chunk file %v: %w", chunkPath, err)
		}
		// Wrapped so CopyBuffer reads through buf rather than ReadFrom/WriteTo.
		n, err := io.CopyBuffer(struct{ io.Writer }{out}, struct{ io.Reader }{in}, buf)
		in.Close()
		if err != nil {
			return res, fmt.Errorf("error copying chunk file %v to output: %w", chunkPath, err)
		}
		if err := os.Remove(chunkPath); err != nil {
			return res, fmt.Errorf("error removing chunk file %v: %w", chunkPath, err)
		}
		res.Consumed++
		res.Size += n
	}
	if err := out.Close(); err != nil {
		return res, err
	}
	if hasRecord {
		if err := os.Remove(recordPath); err != nil {
			return res, err
		}
	}
	log.Printf("Merged file %v", res.Archive)
	return res, nil
}

// MergeDir reconstitutes the chunk set in dir, if any, then extracts the one
// zip archive left in dir and removes it.
func MergeDir(dir string, cfg Config) (MergeResult, error) {
	res, err := MergeChunks(dir, cfg)
	if err != nil {
		return res, err
	}
	if _, err := Unpack(dir); err != nil {
		return res, err
	}
	return res, nil
}
