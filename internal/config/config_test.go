package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"tonearm/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"), true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Identify.MinFingerprintTracks != 3 {
		t.Fatalf("expected default min_fingerprint_tracks, got %d", cfg.Identify.MinFingerprintTracks)
	}
	if cfg.Planner.ConflictPolicy != "fail" {
		t.Fatalf("expected fail conflict policy default, got %q", cfg.Planner.ConflictPolicy)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
library_dir = "` + dir + `/lib"
state_dir = "` + dir + `/state"

[planner]
conflict_policy = "RENAME"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Planner.ConflictPolicy != "rename" {
		t.Fatalf("expected normalized rename policy, got %q", cfg.Planner.ConflictPolicy)
	}
	if cfg.Paths.LibraryDir != dir+"/lib" {
		t.Fatalf("unexpected library dir %q", cfg.Paths.LibraryDir)
	}
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.Planner.ConflictPolicy = "overwrite"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown conflict policy")
	}
}

func TestValidateRejectsThresholdOutOfRange(t *testing.T) {
	cfg := config.Default()
	cfg.Identify.AutoPinThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for threshold > 1")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
}
