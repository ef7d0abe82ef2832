package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// fakeGit is a map-backed GitSource.
type fakeGit map[string]string

func (f fakeGit) ConfigGet(_ context.Context, key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), fakeGit{}, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Namespace != DefaultNamespace {
		t.Errorf("Namespace = %q", cfg.Namespace)
	}
	if cfg.ArtifactsNamespace != DefaultArtifactsNamespace {
		t.Errorf("ArtifactsNamespace = %q", cfg.ArtifactsNamespace)
	}
	if cfg.MergeStrategy != "union" {
		t.Errorf("MergeStrategy = %q", cfg.MergeStrategy)
	}
	if cfg.ArtifactMaxSize != DefaultArtifactMaxSize {
		t.Errorf("ArtifactMaxSize = %d", cfg.ArtifactMaxSize)
	}
	if cfg.AutoPush || cfg.AutoPull {
		t.Error("auto sync flags should default off")
	}
}

func TestGitConfigWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".gadr.yaml")
	content := "namespace: refs/notes/from-file\nsync:\n  mergestrategy: theirs\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	git := fakeGit{KeyNamespace: "refs/notes/from-git"}
	cfg, err := Load(context.Background(), git, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Namespace != "refs/notes/from-git" {
		t.Errorf("Namespace = %q, want git layer to win", cfg.Namespace)
	}
	// The file layer still applies where git config is silent.
	if cfg.MergeStrategy != "theirs" {
		t.Errorf("MergeStrategy = %q, want file value", cfg.MergeStrategy)
	}
}

func TestSizeParsing(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1048576", 1 << 20, true},
		{"512k", 512 << 10, true},
		{"10M", 10 << 20, true},
		{"1g", 1 << 30, true},
		{" 2m ", 2 << 20, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseSize(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseSize(%q) succeeded, want error", tt.in)
		}
	}
}

func TestGitConfigSizes(t *testing.T) {
	git := fakeGit{
		KeyArtifactMaxSize:  "20m",
		KeyArtifactWarnSize: "2m",
	}
	cfg, err := Load(context.Background(), git, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ArtifactMaxSize != 20<<20 || cfg.ArtifactWarnSize != 2<<20 {
		t.Errorf("sizes = %d / %d", cfg.ArtifactWarnSize, cfg.ArtifactMaxSize)
	}
}

func TestValidation(t *testing.T) {
	if _, err := Load(context.Background(), fakeGit{KeyMergeStrategy: "newest"}, ""); err == nil {
		t.Error("expected error for unknown merge strategy")
	}
	bad := fakeGit{KeyArtifactWarnSize: "20m", KeyArtifactMaxSize: "1m"}
	if _, err := Load(context.Background(), bad, ""); err == nil {
		t.Error("expected error for warn size above max size")
	}
	if _, err := Load(context.Background(), fakeGit{KeyAutoPush: "not-a-bool"}, ""); err == nil {
		t.Error("expected error for malformed bool")
	}
}
