package config_test

import (
	"testing"

	"tonearm/internal/config"
)

func TestSettingsHashStable(t *testing.T) {
	cfg := config.Default()
	first := cfg.SettingsHash(config.StageIdentify)
	second := cfg.SettingsHash(config.StageIdentify)
	if first != second {
		t.Fatalf("identify hash not stable: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected hex sha256, got %q", first)
	}
}

func TestSettingsHashScopedToStage(t *testing.T) {
	cfg := config.Default()
	identifyBefore := cfg.SettingsHash(config.StageIdentify)
	planBefore := cfg.SettingsHash(config.StagePlan)

	// A planner-only change must not invalidate identification results.
	cfg.Planner.ConflictPolicy = "rename"
	if got := cfg.SettingsHash(config.StageIdentify); got != identifyBefore {
		t.Fatal("planner change leaked into identify settings hash")
	}
	if got := cfg.SettingsHash(config.StagePlan); got == planBefore {
		t.Fatal("planner change did not alter plan settings hash")
	}

	// An identify-only change must not invalidate plans.
	planBefore = cfg.SettingsHash(config.StagePlan)
	cfg.Identify.MinFingerprintTracks = 5
	if got := cfg.SettingsHash(config.StagePlan); got != planBefore {
		t.Fatal("identify change leaked into plan settings hash")
	}
}
