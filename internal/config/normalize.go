package config

import (
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() {
	c.Paths.LibraryDir = expandHome(c.Paths.LibraryDir)
	c.Paths.StateDir = expandHome(c.Paths.StateDir)
	c.Identify.CanonicalProvider = strings.ToLower(strings.TrimSpace(c.Identify.CanonicalProvider))
	c.Planner.ConflictPolicy = strings.ToLower(strings.TrimSpace(c.Planner.ConflictPolicy))
	c.Planner.VariousArtistsName = strings.TrimSpace(c.Planner.VariousArtistsName)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
}

func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
