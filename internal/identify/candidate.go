package identify

// Candidate is one scored release hypothesis for a directory.
type Candidate struct {
	Provider   string  `json:"provider"`
	ReleaseID  string  `json:"release_id"`
	Artist     string  `json:"artist"`
	Album      string  `json:"album"`
	Year       int     `json:"year,omitempty"`
	TrackCount int     `json:"track_count"`
	DiscCount  int     `json:"disc_count"`
	// FingerprintHits counts evidence tracks whose fingerprint matched this
	// release.
	FingerprintHits int     `json:"fingerprint_hits"`
	SFingerprint    float64 `json:"s_fingerprint"`
	SMetadata       float64 `json:"s_metadata"`
	SStructure      float64 `json:"s_structure"`
	Score           float64 `json:"score"`
	// Reasons are human-readable and part of the contract: two runs over the
	// same inputs produce byte-identical reason lists.
	Reasons []string `json:"reasons"`
}

// Identity is the canonical identity candidates merge by.
func (c Candidate) Identity() string {
	return c.Provider + ":" + c.ReleaseID
}

// Outcome is the result of identifying one directory. An empty candidate
// list is the deterministic no-candidates outcome; Notes explain why.
type Outcome struct {
	Candidates []Candidate `json:"candidates"`
	Notes      []string    `json:"notes,omitempty"`
}

// NoCandidates reports whether identification produced nothing to rank.
func (o Outcome) NoCandidates() bool {
	return len(o.Candidates) == 0
}
