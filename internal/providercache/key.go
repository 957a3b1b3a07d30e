package providercache

import (
	"fmt"
	"strconv"
	"strings"

	"tonearm/internal/textutil"
)

// Request kinds stored in the cache.
const (
	KindFingerprint = "fingerprint"
	KindMetadata    = "metadata"
	KindRelease     = "release"
)

// durationBucketSec groups near-equal track durations into one cache key so
// a one-second remux difference still hits.
const durationBucketSec = 8

// Key identifies one memoized provider response.
type Key struct {
	Provider      string
	Kind          string
	Query         string
	ClientVersion string
}

// Validate rejects keys with empty components; such keys would collide
// across providers or versions.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Provider) == "" {
		return fmt.Errorf("cache key missing provider")
	}
	if strings.TrimSpace(k.Kind) == "" {
		return fmt.Errorf("cache key missing request kind")
	}
	if strings.TrimSpace(k.Query) == "" {
		return fmt.Errorf("cache key missing query")
	}
	if strings.TrimSpace(k.ClientVersion) == "" {
		return fmt.Errorf("cache key missing client version")
	}
	return nil
}

// FingerprintQuery builds the canonical query component for a fingerprint
// lookup: the fingerprint hash plus the duration bucket.
func FingerprintQuery(fingerprint string, durationSec int) string {
	bucket := durationSec / durationBucketSec
	return fingerprint + "@" + strconv.Itoa(bucket)
}

// MetadataQuery builds the canonical query component for a metadata search.
// Artist and album are normalized so tag spelling variants share an entry.
func MetadataQuery(artist, album string, trackCount int) string {
	return textutil.NormalizeQuery(artist) + "|" + textutil.NormalizeQuery(album) + "|" + strconv.Itoa(trackCount)
}

// ReleaseQuery builds the canonical query component for a release lookup.
func ReleaseQuery(releaseID string) string {
	return strings.TrimSpace(releaseID)
}
