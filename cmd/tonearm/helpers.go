package main

import (
	"tonearm/internal/decision"
	"tonearm/internal/organizer"
)

// newOrganizer builds the pipeline runner. A nil decider gets the plain
// threshold pinner; commands that should record decisions pass a recorder.
func newOrganizer(p *pipeline, decider decision.Source) *organizer.Organizer {
	if decider == nil {
		decider = decision.ThresholdPinner{Threshold: p.cfg.Identify.AutoPinThreshold}
	}
	return organizer.New(p.cfg, p.store, p.engine, p.applier, decider, p.logger)
}

// recordingDecider auto-pins above the configured threshold and appends every
// decisive verdict to the replayable decision log.
func recordingDecider(p *pipeline) decision.Source {
	return decision.NewRecorder(
		decision.ThresholdPinner{Threshold: p.cfg.Identify.AutoPinThreshold},
		p.cfg.DecisionLogPath(),
		nil,
	)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
