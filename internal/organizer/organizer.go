package organizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"tonearm/internal/apply"
	"tonearm/internal/config"
	"tonearm/internal/decision"
	"tonearm/internal/faults"
	"tonearm/internal/identify"
	"tonearm/internal/logging"
	"tonearm/internal/plan"
	"tonearm/internal/state"
)

// Organizer runs the full pipeline over the registered directories.
type Organizer struct {
	cfg     *config.Config
	store   *state.Store
	engine  *identify.Engine
	applier *apply.Applier
	decider decision.Source
	logger  *slog.Logger
	workers int
}

// Option customises the organizer.
type Option func(*Organizer)

// WithWorkers bounds the identification worker pool.
func WithWorkers(n int) Option {
	return func(o *Organizer) {
		if n > 0 {
			o.workers = n
		}
	}
}

// New wires the pipeline components together.
func New(cfg *config.Config, store *state.Store, engine *identify.Engine, applier *apply.Applier, decider decision.Source, logger *slog.Logger, opts ...Option) *Organizer {
	o := &Organizer{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		applier: applier,
		decider: decider,
		logger:  logging.NewComponentLogger(logger, "organizer"),
		workers: 4,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Summary counts what one run did.
type Summary struct {
	Recovered  int
	Identified int
	Pinned     int
	Jailed     int
	Applied    int
	// Undecided directories stay queued for a later decision.
	Undecided int
	// Errors lists per-directory failures that did not stop the run.
	Errors []string
}

// Run executes one pipeline pass: settle interrupted applies, re-queue
// directories whose identification settings drifted, identify, decide, then
// plan and apply pinned directories. Only a rollback failure aborts the run;
// every other failure is recorded against its directory.
func (o *Organizer) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	recovered, err := o.applier.Recover(ctx)
	if err != nil {
		return summary, err
	}
	summary.Recovered = recovered

	if err := o.requeueDrifted(ctx); err != nil {
		return summary, err
	}
	if err := o.identifyScanned(ctx, summary); err != nil {
		return summary, err
	}
	if err := o.decideQueued(ctx, summary); err != nil {
		return summary, err
	}
	if err := o.applyResolved(ctx, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

// requeueDrifted resets queued directories whose candidates were computed
// under different identification settings. Their candidate lists no longer
// describe what the current settings would produce.
func (o *Organizer) requeueDrifted(ctx context.Context) error {
	currentHash := o.cfg.SettingsHash(config.StageIdentify)
	queued, err := o.store.ListByStatus(ctx, state.StatusQueued)
	if err != nil {
		return err
	}
	for _, dir := range queued {
		if dir.SettingsHash == currentHash {
			continue
		}
		o.logger.Info("identification settings changed, requeueing",
			logging.String(logging.FieldDirID, dir.DirID))
		if err := o.store.Requeue(ctx, dir.DirID); err != nil {
			return err
		}
	}
	return nil
}

// identifyScanned fans identification out over the worker pool, then persists
// results sequentially in dir_id order.
func (o *Organizer) identifyScanned(ctx context.Context, summary *Summary) error {
	dirs, err := o.store.ListByStatus(ctx, state.StatusScanned)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		return nil
	}

	type identifyResult struct {
		outcome identify.Outcome
		err     error
	}
	results := make([]identifyResult, len(dirs))

	indexes := make(chan int)
	var wg sync.WaitGroup
	workers := o.workers
	if workers > len(dirs) {
		workers = len(dirs)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				ev, evErr := dirs[i].Evidence()
				if evErr != nil {
					results[i] = identifyResult{err: evErr}
					continue
				}
				dirCtx := logging.WithDirectory(ctx, dirs[i].DirID)
				outcome, idErr := o.engine.Identify(dirCtx, ev)
				results[i] = identifyResult{outcome: outcome, err: idErr}
			}
		}()
	}
	for i := range dirs {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	settingsHash := o.cfg.SettingsHash(config.StageIdentify)
	for i, dir := range dirs {
		res := results[i]
		if res.err != nil {
			if faults.IsFatal(res.err) {
				return res.err
			}
			// Identification errors leave the directory in its prior state:
			// it stays scanned and retries on a later run. Jail is reserved
			// for decision verdicts and no-candidate outcomes.
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", dir.DirID, res.err))
			continue
		}
		outcomeJSON, err := json.Marshal(&res.outcome)
		if err != nil {
			return fmt.Errorf("serialize outcome for %s: %w", dir.DirID, err)
		}
		if err := o.store.MarkQueued(ctx, dir.DirID, settingsHash, string(outcomeJSON)); err != nil {
			return err
		}
		summary.Identified++
	}
	return nil
}

// decideQueued asks the decision source about every queued directory.
func (o *Organizer) decideQueued(ctx context.Context, summary *Summary) error {
	dirs, err := o.store.ListByStatus(ctx, state.StatusQueued)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		var outcome identify.Outcome
		if dir.CandidatesJSON != "" {
			if err := json.Unmarshal([]byte(dir.CandidatesJSON), &outcome); err != nil {
				return fmt.Errorf("decode outcome for %s: %w", dir.DirID, err)
			}
		}
		verdict, err := o.decider.Decide(ctx, dir.DirID, dir.EvidenceFingerprint, outcome.Candidates)
		if err != nil {
			// A refused decision (for example a replayed decision whose
			// evidence changed) must not mutate the directory.
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", dir.DirID, err))
			continue
		}
		switch {
		case verdict.Jail:
			if err := o.store.MarkJailed(ctx, dir.DirID, verdict.JailReason); err != nil {
				return err
			}
			summary.Jailed++
		case verdict.Pinned():
			if err := o.store.MarkResolved(ctx, dir.DirID, dir.SettingsHash, verdict.Provider, verdict.ReleaseID); err != nil {
				return err
			}
			summary.Pinned++
		default:
			summary.Undecided++
		}
	}
	return nil
}

// applyResolved plans and applies every pinned directory, sequentially. Apply
// mutates the library, so each directory plans against the library state its
// predecessors left behind.
func (o *Organizer) applyResolved(ctx context.Context, summary *Summary) error {
	dirs, err := o.store.ListByStatus(ctx, state.StatusResolved)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := o.planAndApply(ctx, dir, summary); err != nil {
			if faults.IsFatal(err) {
				return err
			}
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", dir.DirID, err))
			if errors.Is(err, faults.ErrConflict) {
				if jailErr := o.store.MarkJailed(ctx, dir.DirID, err.Error()); jailErr != nil {
					return jailErr
				}
				summary.Jailed++
			}
		}
	}
	return nil
}

func (o *Organizer) planAndApply(ctx context.Context, dir *state.Directory, summary *Summary) error {
	p, err := o.buildPlan(ctx, dir)
	if err != nil {
		return err
	}
	res, err := o.applier.Apply(logging.WithDirectory(ctx, dir.DirID), p)
	if err != nil {
		return err
	}
	if !res.AlreadyApplied {
		summary.Applied++
	}
	return nil
}

// buildPlan resolves the pinned release and plans the directory against the
// library's current contents, persisting the plan for audit.
func (o *Organizer) buildPlan(ctx context.Context, dir *state.Directory) (*plan.Plan, error) {
	release, err := o.engine.ResolveRelease(ctx, dir.PinnedProvider, dir.PinnedReleaseID)
	if err != nil {
		return nil, err
	}
	ev, err := dir.Evidence()
	if err != nil {
		return nil, err
	}
	existing, err := o.libraryPaths()
	if err != nil {
		return nil, err
	}
	p, err := plan.Build(plan.Input{
		Release:       release,
		Evidence:      ev,
		Config:        o.cfg.Planner,
		ExistingPaths: existing,
	})
	if err != nil {
		return nil, err
	}
	if err := o.store.SavePlan(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// PreviewPlans plans every resolved directory without applying anything.
// Plans are persisted, so a later apply executes exactly what was shown.
func (o *Organizer) PreviewPlans(ctx context.Context) ([]*plan.Plan, error) {
	dirs, err := o.store.ListByStatus(ctx, state.StatusResolved)
	if err != nil {
		return nil, err
	}
	var plans []*plan.Plan
	for _, dir := range dirs {
		p, err := o.buildPlan(ctx, dir)
		if err != nil {
			return plans, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// Identify runs only the identification phase.
func (o *Organizer) Identify(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	if err := o.requeueDrifted(ctx); err != nil {
		return summary, err
	}
	err := o.identifyScanned(ctx, summary)
	return summary, err
}

// Decide runs only the decision phase over queued directories.
func (o *Organizer) Decide(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	err := o.decideQueued(ctx, summary)
	return summary, err
}

// PlanAndApply runs only the plan and apply phase over resolved directories.
func (o *Organizer) PlanAndApply(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	err := o.applyResolved(ctx, summary)
	return summary, err
}

// libraryPaths snapshots the library's current relative paths for conflict
// detection.
func (o *Organizer) libraryPaths() ([]string, error) {
	root := o.cfg.Paths.LibraryDir
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk library: %w", err)
	}
	return paths, nil
}
