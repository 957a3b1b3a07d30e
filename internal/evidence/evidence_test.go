package evidence_test

import (
	"strings"
	"testing"

	"tonearm/internal/evidence"
)

func sample() evidence.DirEvidence {
	return evidence.DirEvidence{
		Path: "/incoming/album",
		Tracks: []evidence.TrackEvidence{
			{Path: "02 second.flac", Fingerprint: "fp-2", DurationSec: 210, Artist: "Artist", Album: "Album", TrackNum: 2, DiscNum: 1},
			{Path: "01 first.flac", Fingerprint: "fp-1", DurationSec: 190, Artist: "Artist", Album: "Album", TrackNum: 1, DiscNum: 1},
		},
	}
}

func TestNormalizeOrdersTracks(t *testing.T) {
	ev := sample()
	ev.Normalize()
	if ev.Tracks[0].TrackNum != 1 || ev.Tracks[1].TrackNum != 2 {
		t.Fatalf("expected disc/track ordering, got %+v", ev.Tracks)
	}
}

func TestFingerprintIndependentOfOrderAndPath(t *testing.T) {
	a := sample()
	b := sample()
	b.Path = "/somewhere/else/renamed"
	b.Tracks[0], b.Tracks[1] = b.Tracks[1], b.Tracks[0]

	fpA, err := a.FingerprintHash()
	if err != nil {
		t.Fatalf("fingerprint a: %v", err)
	}
	fpB, err := b.FingerprintHash()
	if err != nil {
		t.Fatalf("fingerprint b: %v", err)
	}
	if fpA != fpB {
		t.Fatalf("fingerprint should ignore path and ordering: %s vs %s", fpA, fpB)
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := sample()
	b := sample()
	b.Tracks[0].Fingerprint = "fp-other"

	fpA, _ := a.FingerprintHash()
	fpB, _ := b.FingerprintHash()
	if fpA == fpB {
		t.Fatal("fingerprint must change when track content changes")
	}
}

func TestValidateRejectsSilentMissingFingerprint(t *testing.T) {
	ev := sample()
	ev.Tracks[0].Fingerprint = ""
	ev.Tracks[0].FingerprintGap = ""
	err := ev.Validate()
	if err == nil {
		t.Fatal("expected validation error for fingerprint with no reason")
	}
	if !strings.Contains(err.Error(), "no extraction reason") {
		t.Fatalf("unexpected error: %v", err)
	}

	ev.Tracks[0].FingerprintGap = "decoder does not support ape"
	if err := ev.Validate(); err != nil {
		t.Fatalf("expected evidence with reason to pass, got %v", err)
	}
}

func TestTagHintsDominance(t *testing.T) {
	ev := evidence.DirEvidence{Tracks: []evidence.TrackEvidence{
		{Path: "a", DurationSec: 100, Fingerprint: "x", Artist: "Miles Davis", Album: "Kind of Blue"},
		{Path: "b", DurationSec: 100, Fingerprint: "y", Artist: "Miles Davis", Album: "Kind of Blue"},
		{Path: "c", DurationSec: 100, Fingerprint: "z", Artist: "Bill Evans", Album: "Kind of Blue"},
	}}
	artist, album, present := ev.TagHints()
	if !present {
		t.Fatal("expected hints present")
	}
	if artist != "Miles Davis" || album != "Kind of Blue" {
		t.Fatalf("unexpected hints: %q / %q", artist, album)
	}
}

func TestDiscCountDefaultsToOne(t *testing.T) {
	ev := evidence.DirEvidence{Tracks: []evidence.TrackEvidence{
		{Path: "a", DurationSec: 100, Fingerprint: "x"},
		{Path: "b", DurationSec: 100, Fingerprint: "y", DiscNum: 2},
	}}
	if got := ev.DiscCount(); got != 2 {
		t.Fatalf("expected 2 discs, got %d", got)
	}
}
