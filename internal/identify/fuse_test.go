package identify_test

import (
	"context"
	"testing"

	"tonearm/internal/evidence"
	"tonearm/internal/identify"
	"tonearm/internal/logging"
	"tonearm/internal/testsupport"
)

// TestBranchSelectionIsPerDirectory pins down the documented interpretation
// of the scoring-branch rule: one candidate crossing the fingerprint
// threshold forces the fingerprint formula onto every candidate in the
// directory. The competing per-candidate interpretation would score R2 at
// 0.55*0.95 + 0.45*1.0 and let it overtake R1; this test fails under that
// interpretation by construction.
func TestBranchSelectionIsPerDirectory(t *testing.T) {
	provider := fingerprintProvider()
	// Make R2's metadata stronger than R1's so a per-candidate branch would
	// flip the ranking.
	provider.Summaries = []identify.ReleaseSummary{
		{ReleaseID: "R2", Artist: "Miles Davis", Album: "Kind of Blue", Year: 1997, TrackCount: 10, DiscCount: 1},
	}
	engine, _ := newEngine(t, []identify.Provider{provider})

	outcome, err := engine.Identify(context.Background(), tenTrackEvidence())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if outcome.Candidates[0].ReleaseID != "R1" {
		t.Fatalf("per-directory branch selection must keep R1 on top, got %s", outcome.Candidates[0].ReleaseID)
	}
	for _, cand := range outcome.Candidates {
		metadataBranchScore := 0.55*cand.SMetadata + 0.45*cand.SStructure
		if cand.FingerprintHits == 0 && floatsEqual(cand.Score, metadataBranchScore) && cand.SMetadata > 0.9 {
			t.Fatalf("candidate %s was scored on the metadata branch inside a fingerprint-branch directory", cand.ReleaseID)
		}
	}
}

func TestBelowThresholdUsesMetadataBranch(t *testing.T) {
	provider := fingerprintProvider()
	// Keep only one fingerprint match: below the default threshold of 3.
	recordings := map[string][]identify.RecordingMatch{
		"fp-1": provider.Recordings["fp-1"],
	}
	provider.Recordings = recordings
	engine, _ := newEngine(t, []identify.Provider{provider})

	outcome, err := engine.Identify(context.Background(), tenTrackEvidence())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	for _, cand := range outcome.Candidates {
		expected := 0.55*cand.SMetadata + 0.45*cand.SStructure
		if !floatsEqual(cand.Score, expected) {
			t.Fatalf("candidate %s must use the metadata branch below threshold: score %g, expected %g",
				cand.ReleaseID, cand.Score, expected)
		}
	}
}

func TestTieBreakByCanonicalIdentity(t *testing.T) {
	// Two metadata-only candidates with identical scores must order by
	// release id, giving a total order independent of map iteration.
	provider := &testsupport.FakeProvider{
		ProviderName: "musicbrainz",
		Metadata:     true,
		Summaries: []identify.ReleaseSummary{
			{ReleaseID: "R-b", Artist: "Artist", Album: "Album", TrackCount: 2, DiscCount: 1},
			{ReleaseID: "R-a", Artist: "Artist", Album: "Album", TrackCount: 2, DiscCount: 1},
		},
	}
	engine, _ := newEngine(t, []identify.Provider{provider})

	ev := &evidence.DirEvidence{Path: "/incoming/x", Tracks: []evidence.TrackEvidence{
		{Path: "1.flac", DurationSec: 100, FingerprintGap: "no decoder", Artist: "Artist", Album: "Album", TrackNum: 1},
		{Path: "2.flac", DurationSec: 100, FingerprintGap: "no decoder", Artist: "Artist", Album: "Album", TrackNum: 2},
	}}

	for run := 0; run < 5; run++ {
		outcome, err := engine.Identify(context.Background(), ev)
		if err != nil {
			t.Fatalf("Identify: %v", err)
		}
		if len(outcome.Candidates) != 2 {
			t.Fatalf("expected 2 candidates, got %d", len(outcome.Candidates))
		}
		if outcome.Candidates[0].ReleaseID != "R-a" || outcome.Candidates[1].ReleaseID != "R-b" {
			t.Fatalf("run %d: tie-break must order by release id, got %s before %s",
				run, outcome.Candidates[0].ReleaseID, outcome.Candidates[1].ReleaseID)
		}
	}
}

func TestReasonStringsAreContract(t *testing.T) {
	provider := fingerprintProvider()
	engine, _ := newEngine(t, []identify.Provider{provider})

	outcome, err := engine.Identify(context.Background(), tenTrackEvidence())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	top := outcome.Candidates[0]
	wantFirst := "8/10 tracks fingerprint-match this release"
	if len(top.Reasons) == 0 || top.Reasons[0] != wantFirst {
		t.Fatalf("expected first reason %q, got %v", wantFirst, top.Reasons)
	}
	found := false
	for _, reason := range top.Reasons {
		if reason == "track count matches (10)" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected track-count reason, got %v", top.Reasons)
	}
}

func TestStructureScoreMismatchReason(t *testing.T) {
	provider := fingerprintProvider()
	// R1 keeps ten tracks but claims two discs.
	provider.Releases["R1"].DiscCount = 2
	engine, _ := newEngine(t, []identify.Provider{provider})

	outcome, err := engine.Identify(context.Background(), tenTrackEvidence())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	top := outcome.Candidates[0]
	if top.SStructure >= 1.0 {
		t.Fatalf("disc mismatch must lower the structural score, got %g", top.SStructure)
	}
	found := false
	for _, reason := range top.Reasons {
		if reason == "disc count mismatch: directory 1, release 2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected disc mismatch reason, got %v", top.Reasons)
	}
}

func floatsEqual(a, b float64) bool {
	diff := a - b
	return diff < 1e-9 && diff > -1e-9
}

// duplicateReleaseProviders builds a fingerprint specialist and a metadata
// provider that both name release R1.
func duplicateReleaseProviders() []identify.Provider {
	fpProvider := &testsupport.FakeProvider{
		ProviderName: "acoustid",
		Fingerprints: true,
		Recordings: map[string][]identify.RecordingMatch{
			"fp-1": {{Fingerprint: "fp-1", RecordingID: "rec-1", ReleaseIDs: []string{"R1"}}},
			"fp-2": {{Fingerprint: "fp-2", RecordingID: "rec-2", ReleaseIDs: []string{"R1"}}},
			"fp-3": {{Fingerprint: "fp-3", RecordingID: "rec-3", ReleaseIDs: []string{"R1"}}},
		},
		Releases: map[string]*identify.Release{"R1": {
			Provider:  "acoustid",
			ReleaseID: "R1",
			Artist:    "Miles Davis",
			Album:     "Kind of Blue",
			Year:      1959,
			DiscCount: 1,
			Tracks: []identify.ReleaseTrack{
				{Title: "So What", TrackNum: 1, DiscNum: 1},
				{Title: "Freddie Freeloader", TrackNum: 2, DiscNum: 1},
				{Title: "Blue in Green", TrackNum: 3, DiscNum: 1},
			},
		}},
	}
	metaProvider := &testsupport.FakeProvider{
		ProviderName: "musicbrainz",
		Metadata:     true,
		Summaries: []identify.ReleaseSummary{
			{ReleaseID: "R1", Artist: "Miles Davis", Album: "Kind of Blue", Year: 1959, TrackCount: 3, DiscCount: 1},
		},
	}
	return []identify.Provider{fpProvider, metaProvider}
}

func threeTrackEvidence() *evidence.DirEvidence {
	return &evidence.DirEvidence{Path: "/incoming/kob", Tracks: []evidence.TrackEvidence{
		{Path: "01.flac", Fingerprint: "fp-1", DurationSec: 540, Artist: "Miles Davis", Album: "Kind of Blue", TrackNum: 1, DiscNum: 1},
		{Path: "02.flac", Fingerprint: "fp-2", DurationSec: 580, Artist: "Miles Davis", Album: "Kind of Blue", TrackNum: 2, DiscNum: 1},
		{Path: "03.flac", Fingerprint: "fp-3", DurationSec: 330, Artist: "Miles Davis", Album: "Kind of Blue", TrackNum: 3, DiscNum: 1},
	}}
}

func TestCanonicalProviderFoldsDuplicateReleases(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Identify.CanonicalProvider = "musicbrainz"
	cache := testsupport.MustOpenCache(t, cfg)
	engine := identify.New(cache, duplicateReleaseProviders(), cfg.Identify, logging.NewNop())

	outcome, err := engine.Identify(context.Background(), threeTrackEvidence())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(outcome.Candidates) != 1 {
		t.Fatalf("duplicate release ids must fold into one candidate, got %d", len(outcome.Candidates))
	}
	top := outcome.Candidates[0]
	if top.Provider != "musicbrainz" || top.ReleaseID != "R1" {
		t.Fatalf("folded candidate must carry the canonical identity, got %s", top.Identity())
	}
	if top.FingerprintHits != 3 {
		t.Fatalf("folded candidate must absorb the fingerprint support, got %d hits", top.FingerprintHits)
	}
}

func TestNoCanonicalProviderKeepsDuplicatesDistinct(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Identify.CanonicalProvider = ""
	cache := testsupport.MustOpenCache(t, cfg)
	engine := identify.New(cache, duplicateReleaseProviders(), cfg.Identify, logging.NewNop())

	outcome, err := engine.Identify(context.Background(), threeTrackEvidence())
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if len(outcome.Candidates) != 2 {
		t.Fatalf("without a canonical provider both identities must survive, got %d", len(outcome.Candidates))
	}
}
