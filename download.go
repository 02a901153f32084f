package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

const stagingSuffix = ".partial"

type SyncReport struct {
	Synced  []string
	Skipped []string
}

func sectionDir(root, folder string) (string, error) {
	dir, err := entryPath(root, folder)
	if err != nil || filepath.Clean(dir) == filepath.Clean(root) {
		return "", fmt.Errorf("invalid section name %q", folder)
	}
	return dir, nil
}

// synced reports whether the section folder already exists. A folder that
// exists counts as synced regardless of its contents.
func synced(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("%v exists and is not a directory", dir)
	}
	return true, nil
}

func syncSection(ctx context.Context, f Fetcher, sec Section, cfg Config) (bool, error) {
	dir, err := sectionDir(cfg.DestRoot, sec.Folder)
	if err != nil {
		return false, err
	}
	done, err := synced(dir)
	if err != nil {
		return false, err
	}
	if done {
		log.Printf("Skipping dependency %v as it exists", sec.Folder)
		return true, nil
	}
	// The section only takes its folder name once it is fully merged; a failed
	// section leaves nothing behind.
	staging := dir + stagingSuffix
	if err := os.RemoveAll(staging); err != nil {
		return false, err
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return false, err
	}
	if err := fillSection(ctx, f, sec, staging, cfg); err != nil {
		os.RemoveAll(staging)
		return false, err
	}
	if err := os.Rename(staging, dir); err != nil {
		os.RemoveAll(staging)
		return false, err
	}
	return false, nil
}

func fillSection(ctx context.Context, f Fetcher, sec Section, dir string, cfg Config) error {
	for _, rawURL := range sec.URLs {
		if _, err := Download(ctx, f, rawURL, dir); err != nil {
			return err
		}
	}
	if len(sec.URLs) == 0 {
		return nil
	}
	if _, err := MergeDir(dir, cfg); err != nil {
		if !errors.Is(err, ErrNoArchive) {
			return err
		}
		log.Printf("%v", err)
	}
	return nil
}

// Sync fetches the manifest at manifestURL and brings every section into
// cfg.DestRoot: download, merge chunks, extract. Sections whose folder already
// exists are skipped without any request. The first failure aborts the run;
// sections already synced stay in place.
func Sync(ctx context.Context, f Fetcher, manifestURL string, cfg Config) (SyncReport, error) {
	var report SyncReport
	if err := cfg.Validate(); err != nil {
		return report, err
	}
	if err := os.MkdirAll(cfg.DestRoot, 0755); err != nil {
		return report, err
	}
	body, err := f.Open(ctx, manifestURL)
	if err != nil {
		return report, err
	}
	defer body.Close()

	err = ParseManifest(body, func(sec Section) error {
		skipped, err := syncSection(ctx, f, sec, cfg)
		if err != nil {
			return fmt.Errorf("dependency %v: %w", sec.Folder, err)
		}
		if skipped {
			report.Skipped = append(report.Skipped, sec.Folder)
		} else {
			report.Synced = append(report.Synced, sec.Folder)
		}
		return nil
	})
	return report, err
}

// Plan reads the manifest and returns the sections a Sync would fetch, without
// touching the destination.
func Plan(ctx context.Context, f Fetcher, manifestURL string, cfg Config) ([]Section, error) {
	body, err := f.Open(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	sections, err := ReadManifest(body)
	if err != nil {
		return nil, err
	}
	pending := []Section{}
	for _, sec := range sections {
		dir, err := sectionDir(cfg.DestRoot, sec.Folder)
		if err != nil {
			return nil, err
		}
		done, err := synced(dir)
		if err != nil {
			return nil, err
		}
		if !done {
			pending = append(pending, sec)
		}
	}
	return pending, nil
}
