package evidence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TrackEvidence captures the extracted facts for one audio file.
type TrackEvidence struct {
	// Path is the file path relative to the directory at scan time.
	Path string `json:"path"`
	// Fingerprint is the content-derived identifier, empty when extraction
	// failed. FingerprintGap then explains why; a silent empty pair is
	// rejected by Validate.
	Fingerprint    string `json:"fingerprint,omitempty"`
	FingerprintGap string `json:"fingerprint_gap,omitempty"`
	DurationSec    int    `json:"duration_sec"`
	Artist         string `json:"artist,omitempty"`
	Album          string `json:"album,omitempty"`
	Title          string `json:"title,omitempty"`
	TrackNum       int    `json:"track_num,omitempty"`
	DiscNum        int    `json:"disc_num,omitempty"`
}

// DirEvidence aggregates the facts for one scanned directory.
type DirEvidence struct {
	// DirID is the stable identity of the directory, independent of path.
	// Empty until the state store registers the evidence.
	DirID string `json:"dir_id,omitempty"`
	// Path is the directory location at scan time, informational only.
	Path   string          `json:"path"`
	Tracks []TrackEvidence `json:"tracks"`
}

// Normalize orders tracks deterministically by (disc, track, path) so that
// serialization, fingerprints, and scoring never depend on scan order.
func (d *DirEvidence) Normalize() {
	sort.SliceStable(d.Tracks, func(i, j int) bool {
		a, b := d.Tracks[i], d.Tracks[j]
		if a.DiscNum != b.DiscNum {
			return a.DiscNum < b.DiscNum
		}
		if a.TrackNum != b.TrackNum {
			return a.TrackNum < b.TrackNum
		}
		return a.Path < b.Path
	})
}

// Validate checks the scanner contract before evidence enters the pipeline.
func (d *DirEvidence) Validate() error {
	if len(d.Tracks) == 0 {
		return errors.New("directory evidence has no tracks")
	}
	for i, track := range d.Tracks {
		if strings.TrimSpace(track.Path) == "" {
			return fmt.Errorf("track %d has no path", i)
		}
		if track.DurationSec <= 0 {
			return fmt.Errorf("track %q has non-positive duration %d", track.Path, track.DurationSec)
		}
		if track.Fingerprint == "" && strings.TrimSpace(track.FingerprintGap) == "" {
			return fmt.Errorf("track %q has no fingerprint and no extraction reason", track.Path)
		}
	}
	return nil
}

// TotalDurationSec sums track durations.
func (d *DirEvidence) TotalDurationSec() int {
	total := 0
	for _, track := range d.Tracks {
		total += track.DurationSec
	}
	return total
}

// FingerprintedTracks returns the tracks carrying a fingerprint, in canonical
// order.
func (d *DirEvidence) FingerprintedTracks() []TrackEvidence {
	out := make([]TrackEvidence, 0, len(d.Tracks))
	for _, track := range d.Tracks {
		if track.Fingerprint != "" {
			out = append(out, track)
		}
	}
	return out
}

// TagHints reports the dominant artist and album hints plus whether any tag
// hints exist at all. Dominance is by occurrence count with lexical
// tie-breaking so the result is deterministic.
func (d *DirEvidence) TagHints() (artist, album string, present bool) {
	artist = dominantValue(d.Tracks, func(t TrackEvidence) string { return t.Artist })
	album = dominantValue(d.Tracks, func(t TrackEvidence) string { return t.Album })
	for _, track := range d.Tracks {
		if strings.TrimSpace(track.Artist) != "" || strings.TrimSpace(track.Album) != "" {
			present = true
			break
		}
	}
	return artist, album, present
}

// DiscCount returns the number of distinct disc numbers, treating untagged
// tracks as disc 1.
func (d *DirEvidence) DiscCount() int {
	discs := make(map[int]struct{})
	for _, track := range d.Tracks {
		disc := track.DiscNum
		if disc <= 0 {
			disc = 1
		}
		discs[disc] = struct{}{}
	}
	return len(discs)
}

func dominantValue(tracks []TrackEvidence, pick func(TrackEvidence) string) string {
	counts := make(map[string]int)
	for _, track := range tracks {
		value := strings.TrimSpace(pick(track))
		if value == "" {
			continue
		}
		counts[value]++
	}
	best := ""
	bestCount := 0
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if counts[key] > bestCount {
			best = key
			bestCount = counts[key]
		}
	}
	return best
}
