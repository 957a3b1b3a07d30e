package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LibraryDir string `toml:"library_dir"`
	StateDir   string `toml:"state_dir"`
}

// Identify contains identification engine tuning.
type Identify struct {
	// MinFingerprintTracks is the fingerprint-match count that switches a
	// directory onto the fingerprint-weighted scoring branch.
	MinFingerprintTracks int `toml:"min_fingerprint_tracks"`
	// AutoPinThreshold is the composite score at or above which the scripted
	// decision source pins the top candidate without queueing.
	AutoPinThreshold float64 `toml:"auto_pin_threshold"`
	// CanonicalProvider names the provider whose release ids are preferred
	// as canonical identity when candidates merge.
	CanonicalProvider string `toml:"canonical_provider"`
}

// Cache contains provider cache bounds.
type Cache struct {
	MaxEntriesPerNamespace int `toml:"max_entries_per_namespace"`
}

// Planner contains library layout configuration.
type Planner struct {
	ConflictPolicy     string `toml:"conflict_policy"` // fail | skip | rename
	AlbumYearSuffix    bool   `toml:"album_year_suffix"`
	VariousArtistsName string `toml:"various_artists_name"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Identify Identify `toml:"identify"`
	Cache    Cache    `toml:"cache"`
	Planner  Planner  `toml:"planner"`
	Logging  Logging  `toml:"logging"`
}

// Load reads the configuration file at path, falling back to defaults for
// any unset field. A missing file is not an error when allowMissing is set;
// defaults apply.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			if vErr := cfg.Validate(); vErr != nil {
				return nil, vErr
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// DefaultConfigPath returns the conventional config location.
func DefaultConfigPath() string {
	return expandHome("~/.config/tonearm/config.toml")
}

// StateDBPath returns the sqlite path for the directory state store.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Paths.StateDir, "state.db")
}

// CacheDBPath returns the sqlite path for the provider cache.
func (c *Config) CacheDBPath() string {
	return filepath.Join(c.Paths.StateDir, "cache.db")
}

// DecisionLogPath returns the default replayable decision log location.
func (c *Config) DecisionLogPath() string {
	return filepath.Join(c.Paths.StateDir, "decisions.jsonl")
}

// LockFilePath returns the cross-process apply lock location.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.StateDir, "apply.lock")
}

// EnsureDirectories creates the library and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LibraryDir, c.Paths.StateDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
