package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
)

// parseHeader returns the folder name of a "[name]" line. Text after the last
// ']' is ignored; a header without ']' runs to the end of the line.
func parseHeader(line string) string {
	name := line[1:]
	if end := strings.LastIndex(name, "]"); end >= 0 {
		name = name[:end]
	}
	return strings.TrimSpace(name)
}

// ParseManifest reads a dependency manifest and calls fn once per section, in
// order, as soon as the section is complete. Reading stops at the first error
// returned by fn, so sections after a failure are never visited.
func ParseManifest(r io.Reader, fn func(Section) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var current *Section
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "", strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "["):
			name := parseHeader(line)
			if name == "" {
				return fmt.Errorf("manifest line %v: empty section name", lineNo)
			}
			if current != nil {
				if err := fn(*current); err != nil {
					return err
				}
			}
			current = &Section{Folder: name}
		case current == nil:
			log.Printf("Ignoring manifest line %v outside of any section: %v", lineNo, line)
		default:
			current.URLs = append(current.URLs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}
	if current != nil {
		return fn(*current)
	}
	return nil
}

// ReadManifest collects every section of a manifest.
func ReadManifest(r io.Reader) ([]Section, error) {
	var sections []Section
	err := ParseManifest(r, func(s Section) error {
		sections = append(sections, s)
		return nil
	})
	return sections, err
}
