package decision

import (
	"context"

	"tonearm/internal/identify"
)

// Verdict is the decision for one directory. A verdict with Provider and
// ReleaseID pins that release. A verdict with Jail parks the directory. The
// zero verdict leaves the directory queued for a later decision.
type Verdict struct {
	Provider   string
	ReleaseID  string
	Jail       bool
	JailReason string
}

// Pinned reports whether the verdict selects a release.
func (v Verdict) Pinned() bool {
	return !v.Jail && v.Provider != "" && v.ReleaseID != ""
}

// Undecided reports whether the verdict defers the directory.
func (v Verdict) Undecided() bool {
	return !v.Jail && !v.Pinned()
}

// Source produces verdicts. Implementations must be deterministic over
// (dirID, evidenceFingerprint, candidates).
type Source interface {
	Decide(ctx context.Context, dirID, evidenceFingerprint string, candidates []identify.Candidate) (Verdict, error)
}
