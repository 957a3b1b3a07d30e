package identify

import (
	"context"
	"errors"
)

// ErrUnavailable is returned (wrapped) by providers that cannot reach their
// backing service. The engine maps it to a deterministic no-candidates
// outcome instead of letting it escape or retrying.
var ErrUnavailable = errors.New("provider unavailable")

// FingerprintQuery asks for the recordings matching one track's fingerprint.
type FingerprintQuery struct {
	Fingerprint string `json:"fingerprint"`
	DurationSec int    `json:"duration_sec"`
}

// RecordingMatch maps one fingerprint onto a recording and the releases that
// contain it. ReleaseIDs are ordered by the provider.
type RecordingMatch struct {
	Fingerprint string   `json:"fingerprint"`
	RecordingID string   `json:"recording_id"`
	ReleaseIDs  []string `json:"release_ids"`
}

// MetadataSearch is a release-level search by tag hints.
type MetadataSearch struct {
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	TrackCount int    `json:"track_count"`
}

// ReleaseSummary is a provider's search-result view of a release.
type ReleaseSummary struct {
	ReleaseID  string `json:"release_id"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Year       int    `json:"year"`
	TrackCount int    `json:"track_count"`
	DiscCount  int    `json:"disc_count"`
}

// ReleaseTrack is one track of a full release document.
type ReleaseTrack struct {
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	TrackNum    int    `json:"track_num"`
	DiscNum     int    `json:"disc_num"`
	DurationSec int    `json:"duration_sec"`
}

// Release is the full canonical release document used by the planner.
type Release struct {
	Provider  string         `json:"provider"`
	ReleaseID string         `json:"release_id"`
	Artist    string         `json:"artist"`
	Album     string         `json:"album"`
	Year      int            `json:"year"`
	DiscCount int            `json:"disc_count"`
	Tracks    []ReleaseTrack `json:"tracks"`
}

// Provider is the injected metadata source. Implementations declare their
// capabilities explicitly; the engine checks flags, never method presence.
type Provider interface {
	Name() string
	// ClientVersion participates in every cache key so bumping a provider
	// client invalidates only that provider's entries.
	ClientVersion() string
	SupportsFingerprints() bool
	SupportsMetadata() bool
	SearchByFingerprints(ctx context.Context, queries []FingerprintQuery) ([]RecordingMatch, error)
	SearchByMetadata(ctx context.Context, query MetadataSearch) ([]ReleaseSummary, error)
	LookupRelease(ctx context.Context, releaseID string) (*Release, error)
}
