package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, false},
		{"negative buffer", func(c *Config) { c.MergeBufferSize = -1 }, false},
		{"negative rate limit", func(c *Config) { c.RateLimit = -5 }, false},
		{"empty destination", func(c *Config) { c.DestRoot = "" }, false},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.modify(&cfg)
		if err := cfg.Validate(); (err == nil) != tt.ok {
			t.Errorf("%v: expected ok=%v, got %v", tt.name, tt.ok, err)
		}
	}
}

func TestSplitAndMergeCommands(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "dep.zip")
	archive := buildZip(t, []zipEntry{{name: "lib.a", data: randomBytes(200, 21), method: 8}})
	writeFile(t, source, archive)

	if err := newApp().Run([]string{"depsplit", "split", source, "64"}); err != nil {
		t.Fatalf("split command failed: %v", err)
	}
	expected := (len(archive) + 63) / 64
	for i := 0; i < expected; i++ {
		readFile(t, chunkName(source, i))
	}
	if err := newApp().Run([]string{"depsplit", "split", "--record", "--chunk-size", "64", source}); err != nil {
		t.Fatalf("split command with flags failed: %v", err)
	}
	readFile(t, source+recordSuffix)

	out := filepath.Join(dir, "out")
	writeFile(t, filepath.Join(out, ".keep"), nil)
	for i := 0; i < expected; i++ {
		writeFile(t, filepath.Join(out, chunkName("dep.zip", i)), readFile(t, chunkName(source, i)))
	}
	if err := newApp().Run([]string{"depsplit", "merge", "--buffer-size", "32", out}); err != nil {
		t.Fatalf("merge command failed: %v", err)
	}
	if got := readFile(t, filepath.Join(out, "lib.a")); len(got) != 200 {
		t.Errorf("Expected lib.a of 200 bytes, got %d", len(got))
	}
}

func TestCommandsReportBadInput(t *testing.T) {
	dir := t.TempDir()
	args := [][]string{
		{"depsplit", "split", filepath.Join(dir, "missing.zip")},
		{"depsplit", "merge", filepath.Join(dir, "missing")},
		{"depsplit", "merge", dir},
		{"depsplit", "split"},
		{"depsplit", "merge"},
		{"depsplit", "sync"},
	}
	for _, a := range args {
		if err := newApp().Run(a); err != nil {
			t.Errorf("%v: expected the error to be reported, got %v", a, err)
		}
	}
}

func TestSplitCommandRejectsBadChunkSize(t *testing.T) {
	source := filepath.Join(t.TempDir(), "dep.zip")
	writeFile(t, source, []byte("x"))
	if err := newApp().Run([]string{"depsplit", "split", source, "lots"}); err == nil {
		t.Error("Expected an error for a non-numeric chunk size")
	}
	if err := newApp().Run([]string{"depsplit", "split", source, "0"}); err == nil {
		t.Error("Expected an error for a zero chunk size")
	}
}

func TestSyncCommandDryRun(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "deps.txt")
	writeFile(t, manifest, []byte("[engine]\nhttp://127.0.0.1:1/engine.zip\n"))
	dest := filepath.Join(dir, "deps")

	app := newApp()
	var buf bytes.Buffer
	app.Writer = &buf
	if err := app.Run([]string{"depsplit", "sync", "--dry-run", manifest, dest}); err != nil {
		t.Fatalf("sync --dry-run failed: %v", err)
	}
	if names := listDir(t, dir); len(names) != 1 {
		t.Errorf("Dry run should not create anything, got %v", names)
	}
}
