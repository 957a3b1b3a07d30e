package evidence

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// canonicalTrack is the serialization schema for evidence fingerprinting.
// Field order is fixed; adding a field is a fingerprint-breaking change and
// must bump fingerprintSchemaVersion.
type canonicalTrack struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	DurationSec int    `json:"duration_sec"`
	Artist      string `json:"artist"`
	Album       string `json:"album"`
	Title       string `json:"title"`
	TrackNum    int    `json:"track_num"`
	DiscNum     int    `json:"disc_num"`
}

type canonicalDir struct {
	Schema int              `json:"schema"`
	Tracks []canonicalTrack `json:"tracks"`
}

const fingerprintSchemaVersion = 1

// CanonicalBytes serializes the evidence into its canonical byte form. The
// directory path and dir_id are deliberately excluded so moving or renaming a
// directory does not change its identity.
func (d *DirEvidence) CanonicalBytes() ([]byte, error) {
	normalized := *d
	normalized.Tracks = append([]TrackEvidence(nil), d.Tracks...)
	normalized.Normalize()

	doc := canonicalDir{Schema: fingerprintSchemaVersion, Tracks: make([]canonicalTrack, 0, len(normalized.Tracks))}
	for _, track := range normalized.Tracks {
		doc.Tracks = append(doc.Tracks, canonicalTrack{
			Path:        track.Path,
			Fingerprint: track.Fingerprint,
			DurationSec: track.DurationSec,
			Artist:      track.Artist,
			Album:       track.Album,
			Title:       track.Title,
			TrackNum:    track.TrackNum,
			DiscNum:     track.DiscNum,
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize evidence: %w", err)
	}
	return data, nil
}

// Fingerprint returns the hex sha256 of the canonical evidence bytes. Two
// scans of identical content produce identical fingerprints regardless of
// directory location or track ordering.
func (d *DirEvidence) FingerprintHash() (string, error) {
	data, err := d.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:]), nil
}
