package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

func findArchive(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var found []string
	for _, entry := range entries {
		if !entry.IsDir() && isArchive(entry.Name()) {
			found = append(found, entry.Name())
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w in directory %v", ErrNoArchive, dir)
	case 1:
		return filepath.Join(dir, found[0]), nil
	default:
		return "", fmt.Errorf("%w in directory %v: %v", ErrAmbiguousArchive, dir, strings.Join(found, ", "))
	}
}

func entryPath(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %v", ErrUnsafeEntry, name)
	}
	return target, nil
}

func extractEntry(f *zip.File, target string) error {
	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Unpack extracts the single zip archive found in dir into dir and deletes
// it. It returns the paths written, directories included.
func Unpack(dir string) ([]string, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	archive, err := findArchive(dir)
	if err != nil {
		return nil, err
	}
	log.Printf("Decompress file %v", archive)

	rc, err := openArchive(archive)
	if err != nil {
		return nil, fmt.Errorf("error opening archive %v: %w", archive, err)
	}
	targets := make([]string, len(rc.File))
	for i, f := range rc.File {
		if targets[i], err = entryPath(dir, f.Name); err != nil {
			rc.Close()
			return nil, err
		}
		if filepath.Clean(targets[i]) == filepath.Clean(archive) {
			rc.Close()
			return nil, fmt.Errorf("%w: %v would overwrite the archive", ErrUnsafeEntry, f.Name)
		}
	}
	for i, f := range rc.File {
		if err := extractEntry(f, targets[i]); err != nil {
			rc.Close()
			return nil, fmt.Errorf("error extracting %v: %w", f.Name, err)
		}
	}
	if err := rc.Close(); err != nil {
		return nil, err
	}
	if err := os.Remove(archive); err != nil {
		return nil, err
	}
	return targets, nil
}
