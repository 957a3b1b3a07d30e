package testsupport

import (
	"context"
	"fmt"

	"tonearm/internal/identify"
)

// FakeProvider is an in-memory identify.Provider with call counting, used to
// assert the no-re-match and caching invariants.
type FakeProvider struct {
	ProviderName string
	Version      string
	Fingerprints bool
	Metadata     bool

	// Recordings maps a fingerprint to its matches.
	Recordings map[string][]identify.RecordingMatch
	// Releases maps release id to the full document.
	Releases map[string]*identify.Release
	// Summaries are returned for every metadata search.
	Summaries []identify.ReleaseSummary

	// Offline makes every call fail with identify.ErrUnavailable.
	Offline bool

	FingerprintCalls int
	MetadataCalls    int
	ReleaseCalls     int
}

var _ identify.Provider = (*FakeProvider)(nil)

func (f *FakeProvider) Name() string { return f.ProviderName }

func (f *FakeProvider) ClientVersion() string {
	if f.Version == "" {
		return "v1"
	}
	return f.Version
}

func (f *FakeProvider) SupportsFingerprints() bool { return f.Fingerprints }

func (f *FakeProvider) SupportsMetadata() bool { return f.Metadata }

func (f *FakeProvider) SearchByFingerprints(_ context.Context, queries []identify.FingerprintQuery) ([]identify.RecordingMatch, error) {
	f.FingerprintCalls++
	if f.Offline {
		return nil, fmt.Errorf("fake provider %s: %w", f.ProviderName, identify.ErrUnavailable)
	}
	var out []identify.RecordingMatch
	for _, query := range queries {
		out = append(out, f.Recordings[query.Fingerprint]...)
	}
	return out, nil
}

func (f *FakeProvider) SearchByMetadata(_ context.Context, _ identify.MetadataSearch) ([]identify.ReleaseSummary, error) {
	f.MetadataCalls++
	if f.Offline {
		return nil, fmt.Errorf("fake provider %s: %w", f.ProviderName, identify.ErrUnavailable)
	}
	return append([]identify.ReleaseSummary(nil), f.Summaries...), nil
}

func (f *FakeProvider) LookupRelease(_ context.Context, releaseID string) (*identify.Release, error) {
	f.ReleaseCalls++
	if f.Offline {
		return nil, fmt.Errorf("fake provider %s: %w", f.ProviderName, identify.ErrUnavailable)
	}
	release, ok := f.Releases[releaseID]
	if !ok {
		return nil, fmt.Errorf("fake provider %s: release %s not found", f.ProviderName, releaseID)
	}
	return release, nil
}

// TotalCalls sums every provider round-trip, for zero-call assertions.
func (f *FakeProvider) TotalCalls() int {
	return f.FingerprintCalls + f.MetadataCalls + f.ReleaseCalls
}
