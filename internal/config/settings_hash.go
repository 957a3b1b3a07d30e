package config

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
)

// Stage names for settings hashing. Only the configuration relevant to a
// stage participates in its hash, so unrelated config edits never force
// re-identification.
const (
	StageIdentify = "identify"
	StagePlan     = "plan"
)

// SettingsHash fingerprints the configuration subset relevant to the named
// stage. Fields are concatenated in a fixed order; the result is a hex sha256.
func (c *Config) SettingsHash(stage string) string {
	var fields []string
	switch stage {
	case StageIdentify:
		fields = []string{
			"min_fingerprint_tracks=" + strconv.Itoa(c.Identify.MinFingerprintTracks),
			"canonical_provider=" + c.Identify.CanonicalProvider,
		}
	case StagePlan:
		fields = []string{
			"library_dir=" + c.Paths.LibraryDir,
			"conflict_policy=" + c.Planner.ConflictPolicy,
			"album_year_suffix=" + strconv.FormatBool(c.Planner.AlbumYearSuffix),
			"various_artists_name=" + c.Planner.VariousArtistsName,
		}
	default:
		fields = []string{"stage=" + stage}
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\n")))
	return fmt.Sprintf("%x", sum[:])
}
