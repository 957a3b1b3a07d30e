package textutil

import "strings"

// segmentReplacer replaces filesystem-unsafe characters with safe alternatives.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed.
var segmentReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// reservedSegments are device names Windows refuses as path components.
// Comparison is case-insensitive and ignores any extension.
var reservedSegments = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizeSegment converts name into a safe single path segment. Unsafe
// characters follow the fixed replacement table, runs of whitespace collapse
// to one space, leading/trailing whitespace and dots are trimmed, and reserved
// device names gain an underscore prefix. Returns "unknown" when nothing
// survives.
func SanitizeSegment(name string) string {
	name = segmentReplacer.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " .")
	if name == "" {
		return "unknown"
	}
	base := strings.ToLower(name)
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		base = base[:idx]
	}
	if _, reserved := reservedSegments[base]; reserved {
		return "_" + name
	}
	return name
}
