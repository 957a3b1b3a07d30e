package config

const (
	defaultLibraryDir           = "~/music"
	defaultStateDir             = "~/.local/share/tonearm"
	defaultMinFingerprintTracks = 3
	defaultAutoPinThreshold     = 0.9
	defaultCanonicalProvider    = "musicbrainz"
	defaultCacheMaxEntries      = 5000
	defaultConflictPolicy       = "fail"
	defaultVariousArtistsName   = "Various Artists"
	defaultLogLevel             = "info"
	defaultLogFormat            = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StateDir:   defaultStateDir,
		},
		Identify: Identify{
			MinFingerprintTracks: defaultMinFingerprintTracks,
			AutoPinThreshold:     defaultAutoPinThreshold,
			CanonicalProvider:    defaultCanonicalProvider,
		},
		Cache: Cache{
			MaxEntriesPerNamespace: defaultCacheMaxEntries,
		},
		Planner: Planner{
			ConflictPolicy:     defaultConflictPolicy,
			AlbumYearSuffix:    true,
			VariousArtistsName: defaultVariousArtistsName,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
