package textutil_test

import (
	"testing"

	"tonearm/internal/textutil"
)

func TestNormalizeQuery(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"Sigur Rós", "sigur ros"},
		{"  The  Köln   Concert ", "the koln concert"},
		{"AC/DC - Back in Black!", "ac dc back in black"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := textutil.NormalizeQuery(tc.input); got != tc.want {
			t.Fatalf("NormalizeQuery(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
