package decision

import (
	"context"

	"tonearm/internal/identify"
)

// ThresholdPinner pins the top candidate when its score clears the configured
// threshold. Candidates arrive already ranked by the fusion engine, so the
// pinner never re-sorts; it only reads the head of the list.
type ThresholdPinner struct {
	// Threshold is the minimum top score for an automatic pin, in [0, 1].
	Threshold float64
}

func (p ThresholdPinner) Decide(ctx context.Context, dirID, evidenceFingerprint string, candidates []identify.Candidate) (Verdict, error) {
	if len(candidates) == 0 {
		return Verdict{Jail: true, JailReason: "no candidates"}, nil
	}
	top := candidates[0]
	if top.Score >= p.Threshold {
		return Verdict{Provider: top.Provider, ReleaseID: top.ReleaseID}, nil
	}
	// Below threshold: leave queued for a human.
	return Verdict{}, nil
}
