package config

import (
	"errors"
	"fmt"
)

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []error
	if c.Paths.LibraryDir == "" {
		problems = append(problems, errors.New("paths.library_dir must be set"))
	}
	if c.Paths.StateDir == "" {
		problems = append(problems, errors.New("paths.state_dir must be set"))
	}
	if c.Identify.MinFingerprintTracks < 1 {
		problems = append(problems, fmt.Errorf("identify.min_fingerprint_tracks must be >= 1, got %d", c.Identify.MinFingerprintTracks))
	}
	if c.Identify.AutoPinThreshold < 0 || c.Identify.AutoPinThreshold > 1 {
		problems = append(problems, fmt.Errorf("identify.auto_pin_threshold must be in [0,1], got %g", c.Identify.AutoPinThreshold))
	}
	if c.Cache.MaxEntriesPerNamespace < 1 {
		problems = append(problems, fmt.Errorf("cache.max_entries_per_namespace must be >= 1, got %d", c.Cache.MaxEntriesPerNamespace))
	}
	switch c.Planner.ConflictPolicy {
	case "fail", "skip", "rename":
	default:
		problems = append(problems, fmt.Errorf("planner.conflict_policy must be fail, skip, or rename, got %q", c.Planner.ConflictPolicy))
	}
	if c.Planner.VariousArtistsName == "" {
		problems = append(problems, errors.New("planner.various_artists_name must not be empty"))
	}
	return errors.Join(problems...)
}
