package decision_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"tonearm/internal/decision"
	"tonearm/internal/faults"
	"tonearm/internal/identify"
	"tonearm/internal/testsupport"
)

func candidates(topScore float64) []identify.Candidate {
	return []identify.Candidate{
		{Provider: "musicbrainz", ReleaseID: "R1", Score: topScore},
		{Provider: "musicbrainz", ReleaseID: "R2", Score: topScore - 0.2},
	}
}

func TestThresholdPinner(t *testing.T) {
	ctx := context.Background()
	pinner := decision.ThresholdPinner{Threshold: 0.9}

	verdict, err := pinner.Decide(ctx, "dir-1", "fp", candidates(0.95))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !verdict.Pinned() || verdict.ReleaseID != "R1" {
		t.Fatalf("expected pin of R1, got %+v", verdict)
	}

	verdict, err = pinner.Decide(ctx, "dir-1", "fp", candidates(0.5))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !verdict.Undecided() {
		t.Fatalf("sub-threshold score must stay undecided, got %+v", verdict)
	}

	verdict, err = pinner.Decide(ctx, "dir-1", "fp", nil)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !verdict.Jail || verdict.JailReason != "no candidates" {
		t.Fatalf("empty candidate list must jail, got %+v", verdict)
	}
}

func TestRecorderAndReplayRoundTrip(t *testing.T) {
	ctx := context.Background()
	logPath := filepath.Join(t.TempDir(), "decisions.jsonl")
	recorder := decision.NewRecorder(decision.ThresholdPinner{Threshold: 0.9}, logPath, testsupport.FixedClock())

	if _, err := recorder.Decide(ctx, "dir-pin", "fp-pin", candidates(0.95)); err != nil {
		t.Fatalf("Decide (pin): %v", err)
	}
	if _, err := recorder.Decide(ctx, "dir-jail", "fp-jail", nil); err != nil {
		t.Fatalf("Decide (jail): %v", err)
	}
	// Undecided verdicts are not recorded.
	if _, err := recorder.Decide(ctx, "dir-queued", "fp-queued", candidates(0.5)); err != nil {
		t.Fatalf("Decide (queued): %v", err)
	}

	replay, err := decision.LoadReplay(logPath)
	if err != nil {
		t.Fatalf("LoadReplay: %v", err)
	}
	if replay.Len() != 2 {
		t.Fatalf("expected 2 replayable decisions, got %d", replay.Len())
	}

	verdict, err := replay.Decide(ctx, "dir-pin", "fp-pin", nil)
	if err != nil {
		t.Fatalf("replay Decide: %v", err)
	}
	if !verdict.Pinned() || verdict.ReleaseID != "R1" {
		t.Fatalf("unexpected replayed verdict %+v", verdict)
	}

	verdict, err = replay.Decide(ctx, "dir-jail", "fp-jail", nil)
	if err != nil {
		t.Fatalf("replay Decide (jail): %v", err)
	}
	if !verdict.Jail {
		t.Fatalf("expected jail verdict, got %+v", verdict)
	}

	verdict, err = replay.Decide(ctx, "dir-unknown", "fp", nil)
	if err != nil {
		t.Fatalf("replay Decide (unknown): %v", err)
	}
	if !verdict.Undecided() {
		t.Fatalf("unknown directory must stay undecided, got %+v", verdict)
	}
}

func TestReplayRejectsChangedEvidence(t *testing.T) {
	ctx := context.Background()
	logPath := filepath.Join(t.TempDir(), "decisions.jsonl")
	recorder := decision.NewRecorder(decision.ThresholdPinner{Threshold: 0.9}, logPath, testsupport.FixedClock())
	if _, err := recorder.Decide(ctx, "dir-1", "fp-original", candidates(0.95)); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	replay, err := decision.LoadReplay(logPath)
	if err != nil {
		t.Fatalf("LoadReplay: %v", err)
	}
	_, err = replay.Decide(ctx, "dir-1", "fp-changed", nil)
	if !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error for changed evidence, got %v", err)
	}
	for _, fragment := range []string{"dir-1", "fp-original", "fp-changed"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("error must name %q, got %q", fragment, err.Error())
		}
	}
}

func TestLoadReplayMissingFileIsEmpty(t *testing.T) {
	replay, err := decision.LoadReplay(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("LoadReplay: %v", err)
	}
	if replay.Len() != 0 {
		t.Fatalf("missing log must be empty, got %d entries", replay.Len())
	}
}
