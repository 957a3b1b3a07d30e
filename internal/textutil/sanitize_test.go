package textutil_test

import (
	"testing"

	"tonearm/internal/textutil"
)

func TestSanitizeSegment(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Abbey Road", "Abbey Road"},
		{"slash becomes dash", "AC/DC", "AC-DC"},
		{"colon becomes dash", "Reload: Live", "Reload- Live"},
		{"question removed", "What?", "What"},
		{"whitespace collapsed", "  The   Wall  ", "The Wall"},
		{"trailing dots trimmed", "Vol. 2...", "Vol. 2"},
		{"reserved device name", "CON", "_CON"},
		{"reserved with extension", "aux.flac", "_aux.flac"},
		{"empty", "   ", "unknown"},
		{"only unsafe", "?<>|", "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := textutil.SanitizeSegment(tc.input); got != tc.want {
				t.Fatalf("SanitizeSegment(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSanitizeSegmentDeterministic(t *testing.T) {
	input := "Penderecki:  Threnody / Polymorphia?"
	first := textutil.SanitizeSegment(input)
	for i := 0; i < 10; i++ {
		if got := textutil.SanitizeSegment(input); got != first {
			t.Fatalf("sanitization not stable: %q vs %q", got, first)
		}
	}
}
