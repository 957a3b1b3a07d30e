package identify_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"tonearm/internal/config"
	"tonearm/internal/evidence"
	"tonearm/internal/faults"
	"tonearm/internal/identify"
	"tonearm/internal/logging"
	"tonearm/internal/testsupport"
)

// tenTrackEvidence builds the directory from the scoring walkthrough: ten
// tracks, eight of which fingerprint-match release R1.
func tenTrackEvidence() *evidence.DirEvidence {
	ev := &evidence.DirEvidence{Path: "/incoming/kind-of-blue"}
	for i := 1; i <= 10; i++ {
		track := evidence.TrackEvidence{
			Path:        fmt.Sprintf("%02d track.flac", i),
			Fingerprint: fmt.Sprintf("fp-%d", i),
			DurationSec: 200 + i,
			Artist:      "Miles Davis",
			Album:       "Kind of Blue",
			TrackNum:    i,
			DiscNum:     1,
		}
		ev.Tracks = append(ev.Tracks, track)
	}
	return ev
}

func fingerprintProvider() *testsupport.FakeProvider {
	recordings := make(map[string][]identify.RecordingMatch)
	for i := 1; i <= 8; i++ {
		fp := fmt.Sprintf("fp-%d", i)
		recordings[fp] = []identify.RecordingMatch{{
			Fingerprint: fp,
			RecordingID: fmt.Sprintf("rec-%d", i),
			ReleaseIDs:  []string{"R1"},
		}}
	}
	release := &identify.Release{
		Provider:  "musicbrainz",
		ReleaseID: "R1",
		Artist:    "Miles Davis",
		Album:     "Kind of Blue",
		Year:      1959,
		DiscCount: 1,
	}
	for i := 1; i <= 10; i++ {
		release.Tracks = append(release.Tracks, identify.ReleaseTrack{
			Title:    fmt.Sprintf("Track %d", i),
			Artist:   "Miles Davis",
			TrackNum: i,
			DiscNum:  1,
		})
	}
	return &testsupport.FakeProvider{
		ProviderName: "musicbrainz",
		Fingerprints: true,
		Metadata:     true,
		Recordings:   recordings,
		Releases:     map[string]*identify.Release{"R1": release},
		Summaries: []identify.ReleaseSummary{
			{ReleaseID: "R2", Artist: "Miles Davis", Album: "Kind of Blue", Year: 1997, TrackCount: 10, DiscCount: 1},
		},
	}
}

func newEngine(t *testing.T, providers []identify.Provider, opts ...identify.Option) (*identify.Engine, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cache := testsupport.MustOpenCache(t, cfg)
	return identify.New(cache, providers, cfg.Identify, logging.NewNop(), opts...), cfg
}

func TestIdentifyFingerprintDominance(t *testing.T) {
	provider := fingerprintProvider()
	engine, _ := newEngine(t, []identify.Provider{provider})

	outcome, err := engine.Identify(context.Background(), tenTrackEvidence())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(outcome.Candidates) < 2 {
		t.Fatalf("expected R1 and R2 candidates, got %+v", outcome.Candidates)
	}

	top := outcome.Candidates[0]
	if top.ReleaseID != "R1" {
		t.Fatalf("fingerprint-backed R1 must outrank metadata-only R2, got top %s", top.ReleaseID)
	}
	if top.FingerprintHits != 8 {
		t.Fatalf("expected 8 fingerprint hits, got %d", top.FingerprintHits)
	}
	if top.SFingerprint != 0.8 {
		t.Fatalf("expected S_fp 0.8, got %g", top.SFingerprint)
	}
	// 0.65*0.8 + 0.25*1.0 + 0.10*S_meta keeps the score near 0.87.
	if top.Score < 0.77 || top.Score > 0.875 {
		t.Fatalf("unexpected composite score %g", top.Score)
	}

	// The directory crossed the fingerprint threshold, so R2 must be scored
	// on the fingerprint branch too (S_fp = 0), not on 0.55/0.45.
	var r2 identify.Candidate
	for _, cand := range outcome.Candidates {
		if cand.ReleaseID == "R2" {
			r2 = cand
		}
	}
	if r2.ReleaseID == "" {
		t.Fatal("metadata-only candidate R2 must be kept as a distinct entry")
	}
	if r2.Score >= top.Score {
		t.Fatalf("R2 (%g) must not outrank R1 (%g) once the fingerprint branch applies", r2.Score, top.Score)
	}
	expectedR2 := 0.25*r2.SStructure + 0.10*r2.SMetadata
	if diff := r2.Score - expectedR2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("R2 scored on wrong branch: got %g, fingerprint-branch value is %g", r2.Score, expectedR2)
	}
}

func TestIdentifyDeterministicAcrossRuns(t *testing.T) {
	provider := fingerprintProvider()
	engine, _ := newEngine(t, []identify.Provider{provider})
	ctx := context.Background()

	first, err := engine.Identify(ctx, tenTrackEvidence())
	if err != nil {
		t.Fatalf("first Identify: %v", err)
	}
	second, err := engine.Identify(ctx, tenTrackEvidence())
	if err != nil {
		t.Fatalf("second Identify: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("outcomes differ across runs:\n%s\n%s", a, b)
	}
}

func TestIdentifySecondRunServedFromCache(t *testing.T) {
	provider := fingerprintProvider()
	engine, _ := newEngine(t, []identify.Provider{provider})
	ctx := context.Background()

	if _, err := engine.Identify(ctx, tenTrackEvidence()); err != nil {
		t.Fatalf("first Identify: %v", err)
	}
	callsAfterFirst := provider.TotalCalls()

	if _, err := engine.Identify(ctx, tenTrackEvidence()); err != nil {
		t.Fatalf("second Identify: %v", err)
	}
	if provider.TotalCalls() != callsAfterFirst {
		t.Fatalf("second run must be cache-only: %d calls vs %d", provider.TotalCalls(), callsAfterFirst)
	}
}

func TestIdentifyOfflineFingerprintProviderYieldsNoCandidates(t *testing.T) {
	provider := fingerprintProvider()
	provider.Offline = true
	engine, _ := newEngine(t, []identify.Provider{provider})

	outcome, err := engine.Identify(context.Background(), tenTrackEvidence())
	if err != nil {
		t.Fatalf("offline provider must not surface an error, got %v", err)
	}
	if !outcome.NoCandidates() {
		t.Fatalf("offline provider must yield a no-candidates outcome, got %+v", outcome.Candidates)
	}
	if len(outcome.Notes) == 0 {
		t.Fatal("no-candidates outcome must explain itself in notes")
	}
}

func TestIdentifyMetadataOnlyEvidence(t *testing.T) {
	provider := fingerprintProvider()
	engine, _ := newEngine(t, []identify.Provider{provider})

	ev := tenTrackEvidence()
	for i := range ev.Tracks {
		ev.Tracks[i].Fingerprint = ""
		ev.Tracks[i].FingerprintGap = "decoder unavailable"
	}

	outcome, err := engine.Identify(context.Background(), ev)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(outcome.Candidates) == 0 {
		t.Fatal("expected metadata candidates")
	}
	top := outcome.Candidates[0]
	expected := 0.55*top.SMetadata + 0.45*top.SStructure
	if diff := top.Score - expected; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected metadata-branch score %g, got %g", expected, top.Score)
	}
}

func TestIdentifyMetadataOnlyModeIsInvariantViolation(t *testing.T) {
	provider := fingerprintProvider()
	engine, _ := newEngine(t, []identify.Provider{provider}, identify.WithMetadataOnly())

	_, err := engine.Identify(context.Background(), tenTrackEvidence())
	if !errors.Is(err, faults.ErrInvariant) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	if provider.TotalCalls() != 0 {
		t.Fatalf("invariant violation must not reach providers, got %d calls", provider.TotalCalls())
	}
}

func TestIdentifyDegenerateMetadataQueryFailsFast(t *testing.T) {
	provider := &testsupport.FakeProvider{ProviderName: "musicbrainz", Metadata: true}
	engine, _ := newEngine(t, []identify.Provider{provider})

	ev := &evidence.DirEvidence{Path: "/incoming/noise", Tracks: []evidence.TrackEvidence{
		{Path: "a.flac", DurationSec: 100, FingerprintGap: "unsupported codec", Artist: "!!!", Album: "???"},
		{Path: "b.flac", DurationSec: 120, FingerprintGap: "unsupported codec", Artist: "!!!", Album: "???"},
	}}

	_, err := engine.Identify(context.Background(), ev)
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error for degenerate query, got %v", err)
	}
	if provider.MetadataCalls != 0 {
		t.Fatal("degenerate query must never be forwarded to a provider")
	}
}

func TestIdentifyMalformedProviderPayload(t *testing.T) {
	provider := fingerprintProvider()
	provider.Summaries = []identify.ReleaseSummary{{Artist: "Miles Davis", Album: "Kind of Blue"}} // missing release id
	engine, _ := newEngine(t, []identify.Provider{provider})

	_, err := engine.Identify(context.Background(), tenTrackEvidence())
	if !errors.Is(err, faults.ErrProvider) {
		t.Fatalf("expected provider error for malformed payload, got %v", err)
	}
}

func TestResolveReleaseUsesCache(t *testing.T) {
	provider := fingerprintProvider()
	engine, _ := newEngine(t, []identify.Provider{provider})
	ctx := context.Background()

	release, err := engine.ResolveRelease(ctx, "musicbrainz", "R1")
	if err != nil {
		t.Fatalf("ResolveRelease: %v", err)
	}
	if release.Album != "Kind of Blue" {
		t.Fatalf("unexpected release %+v", release)
	}
	callsAfterFirst := provider.ReleaseCalls

	if _, err := engine.ResolveRelease(ctx, "musicbrainz", "R1"); err != nil {
		t.Fatalf("second ResolveRelease: %v", err)
	}
	if provider.ReleaseCalls != callsAfterFirst {
		t.Fatal("second release lookup must hit the cache")
	}
}
