package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tonearm/internal/config"
	"tonearm/internal/faults"
	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/plan"
	"tonearm/internal/state"
)

// Applier executes plans against the library.
type Applier struct {
	cfg      *config.Config
	store    *state.Store
	tags     TagWriter
	logger   *slog.Logger
	locks    *pathLocks
	newTxnID func() string

	// The library flock is shared by every concurrent Apply in this process,
	// ref-counted so overlapping applies on disjoint directories do not see
	// their own lock as a foreign holder.
	flockMu   sync.Mutex
	libFlock  *flock.Flock
	flockHeld int
}

// Option customises applier construction.
type Option func(*Applier)

// WithTxnIDs injects the transaction id source, used by tests for stable ids.
func WithTxnIDs(next func() string) Option {
	return func(a *Applier) {
		if next != nil {
			a.newTxnID = next
		}
	}
}

// New builds an applier over the given store and tag writer.
func New(cfg *config.Config, store *state.Store, tags TagWriter, logger *slog.Logger, opts ...Option) *Applier {
	a := &Applier{
		cfg:      cfg,
		store:    store,
		tags:     tags,
		logger:   logging.NewComponentLogger(logger, "apply"),
		locks:    newPathLocks(),
		newTxnID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result summarizes one apply call.
type Result struct {
	TxnID          string
	PlanHash       string
	MovedTracks    int
	SkippedTracks  int
	AlreadyApplied bool
}

// trackExec tracks how far one track's mutation got, for rollback.
type trackExec struct {
	index   int
	srcAbs  string
	dstAbs  string
	before  plan.TagPatch
	applied plan.TagPatch
	tagged  bool
	moved   bool
}

// Apply executes the plan as one transaction. A plan already applied to the
// directory returns immediately with AlreadyApplied set. Any mid-directory
// failure rolls back every completed track; a rollback failure is fatal and
// flags the directory for recovery.
func (a *Applier) Apply(ctx context.Context, p *plan.Plan) (*Result, error) {
	if p == nil {
		return nil, faults.Wrap(faults.ErrValidation, "apply", "validate plan", "nil plan", nil)
	}
	ok, err := p.Verify()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "apply", "validate plan",
			fmt.Sprintf("plan %s failed hash verification", p.Hash), nil)
	}

	dir, err := a.store.GetByID(ctx, p.DirID)
	if err != nil {
		return nil, err
	}
	if dir.NeedsRecovery {
		return nil, faults.Wrap(faults.ErrApplyTransaction, "apply", "preflight",
			fmt.Sprintf("directory %s needs recovery before any new apply", dir.DirID), nil)
	}
	applied, err := a.store.HasAppliedPlan(ctx, p.DirID, p.Hash)
	if err != nil {
		return nil, err
	}
	if applied || dir.AppliedPlanHash == p.Hash {
		a.logger.Info("plan already applied",
			logging.String(logging.FieldDirID, p.DirID),
			logging.String(logging.FieldPlanHash, p.Hash))
		return &Result{PlanHash: p.Hash, AlreadyApplied: true}, nil
	}
	if dir.Status != state.StatusResolved {
		return nil, faults.Wrap(faults.ErrApplyTransaction, "apply", "preflight",
			fmt.Sprintf("directory %s is %s, not resolved", dir.DirID, dir.Status), nil)
	}

	if err := a.lockLibrary(); err != nil {
		return nil, err
	}
	defer a.unlockLibrary()

	active := p.ActiveTracks()
	pathSet := a.lockSet(dir.Path, active)
	a.locks.acquire(pathSet)
	defer a.locks.release(pathSet)

	var needed uint64
	for _, track := range active {
		info, statErr := os.Stat(filepath.Join(dir.Path, track.SourcePath))
		if statErr != nil {
			return nil, faults.Wrap(faults.ErrApplyTransaction, "apply", "preflight",
				fmt.Sprintf("source %s missing", track.SourcePath), statErr)
		}
		needed += uint64(info.Size())
	}
	if err := checkFreeSpace(a.cfg.Paths.LibraryDir, needed); err != nil {
		return nil, faults.Wrap(faults.ErrApplyTransaction, "apply", "preflight", "", err)
	}

	txnID := a.newTxnID()
	if err := a.store.BeginTransaction(ctx, txnID, p.DirID, p.Hash); err != nil {
		return nil, err
	}

	var done []trackExec
	for i, track := range active {
		exec, stepErr := a.applyTrack(ctx, txnID, i, dir.Path, track)
		if exec != nil {
			done = append(done, *exec)
		}
		if stepErr != nil {
			return nil, a.failAndRollback(ctx, txnID, p, done, stepErr)
		}
	}

	for _, exec := range done {
		if _, statErr := os.Stat(exec.dstAbs); statErr != nil {
			return nil, a.failAndRollback(ctx, txnID, p, done,
				faults.Wrap(faults.ErrApplyTransaction, "apply", "verify",
					fmt.Sprintf("destination %s missing after move", exec.dstAbs), statErr))
		}
	}

	if err := a.store.FinishTransaction(ctx, txnID, state.TxnCommitted); err != nil {
		return nil, err
	}
	a.record(ctx, txnID, p, done, state.OutcomeApplied, nil)
	if err := a.store.MarkApplied(ctx, p.DirID, p.Hash); err != nil {
		return nil, err
	}

	a.logger.Info("plan applied",
		logging.String(logging.FieldDirID, p.DirID),
		logging.String(logging.FieldPlanHash, p.Hash),
		logging.Int("moved", len(done)),
		logging.Int("skipped", len(p.Tracks)-len(active)))
	return &Result{
		TxnID:         txnID,
		PlanHash:      p.Hash,
		MovedTracks:   len(done),
		SkippedTracks: len(p.Tracks) - len(active),
	}, nil
}

// lockLibrary takes the cross-process flock on first use and ref-counts it
// for overlapping applies within this process.
func (a *Applier) lockLibrary() error {
	a.flockMu.Lock()
	defer a.flockMu.Unlock()
	if a.flockHeld == 0 {
		fl := flock.New(a.cfg.LockFilePath())
		gotLock, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("acquire library lock: %w", err)
		}
		if !gotLock {
			return faults.Wrap(faults.ErrApplyTransaction, "apply", "preflight",
				"another process holds the library lock", nil)
		}
		a.libFlock = fl
	}
	a.flockHeld++
	return nil
}

func (a *Applier) unlockLibrary() {
	a.flockMu.Lock()
	defer a.flockMu.Unlock()
	a.flockHeld--
	if a.flockHeld == 0 {
		_ = a.libFlock.Unlock()
		a.libFlock = nil
	}
}

// applyTrack runs one track's journaled mutation sequence: snapshot, write
// tags, move, advance journal. The returned exec reflects exactly how far the
// track got, even on error.
func (a *Applier) applyTrack(ctx context.Context, txnID string, index int, dirPath string, track plan.TrackPlan) (*trackExec, error) {
	exec := &trackExec{
		index:  index,
		srcAbs: filepath.Join(dirPath, track.SourcePath),
		dstAbs: filepath.Join(a.cfg.Paths.LibraryDir, filepath.FromSlash(track.TargetRelPath)),
	}

	before, err := a.tags.ReadTags(exec.srcAbs)
	if err != nil {
		return exec, faults.Wrap(faults.ErrApplyTransaction, "apply", "snapshot tags", track.SourcePath, err)
	}
	exec.before = before
	exec.applied = mergeTags(before, track.Patch)

	beforeJSON, err := json.Marshal(&before)
	if err != nil {
		return exec, fmt.Errorf("encode tag snapshot: %w", err)
	}
	if err := a.store.JournalIntent(ctx, state.JournalEntry{
		TxnID:          txnID,
		TrackIndex:     index,
		SourcePath:     exec.srcAbs,
		TargetPath:     exec.dstAbs,
		BeforeTagsJSON: string(beforeJSON),
	}); err != nil {
		return exec, err
	}

	if err := a.tags.WriteTags(exec.srcAbs, exec.applied); err != nil {
		return exec, faults.Wrap(faults.ErrApplyTransaction, "apply", "write tags", track.SourcePath, err)
	}
	exec.tagged = true
	if err := a.store.AdvanceJournal(ctx, txnID, index, state.StepTagged); err != nil {
		return exec, err
	}

	if err := fileutil.MoveFile(exec.srcAbs, exec.dstAbs); err != nil {
		return exec, faults.Wrap(faults.ErrApplyTransaction, "apply", "move file", track.SourcePath, err)
	}
	exec.moved = true
	if relocator, relocates := a.tags.(Relocator); relocates {
		if err := relocator.Relocate(exec.srcAbs, exec.dstAbs); err != nil {
			return exec, faults.Wrap(faults.ErrApplyTransaction, "apply", "move tag storage", track.SourcePath, err)
		}
	}
	if err := a.store.AdvanceJournal(ctx, txnID, index, state.StepMoved); err != nil {
		return exec, err
	}
	return exec, nil
}

// failAndRollback reverses every completed track after a mid-directory
// failure. Rollback success leaves the directory untouched and resolvable
// again; rollback failure is fatal and parks the directory for recovery.
func (a *Applier) failAndRollback(ctx context.Context, txnID string, p *plan.Plan, done []trackExec, cause error) error {
	a.logger.Warn("apply failed, rolling back",
		logging.String(logging.FieldDirID, p.DirID),
		logging.String(logging.FieldPlanHash, p.Hash),
		logging.Error(cause))

	if err := rollbackTracks(a.tags, done); err != nil {
		if recErr := a.store.SetNeedsRecovery(ctx, p.DirID, true); recErr != nil {
			a.logger.Error("flag recovery failed", logging.Error(recErr))
		}
		if finErr := a.store.FinishTransaction(ctx, txnID, state.TxnFailed); finErr != nil {
			a.logger.Error("finish transaction failed", logging.Error(finErr))
		}
		a.record(ctx, txnID, p, done, state.OutcomeFailed, err)
		return faults.Wrap(faults.ErrRollbackFailure, "apply", "rollback",
			fmt.Sprintf("directory %s left partially applied", p.DirID), err)
	}

	if err := a.store.FinishTransaction(ctx, txnID, state.TxnRolledBack); err != nil {
		a.logger.Error("finish transaction failed", logging.Error(err))
	}
	a.record(ctx, txnID, p, done, state.OutcomeRolledBack, cause)
	return cause
}

// rollbackTracks reverses completed tracks newest-first: moved files return
// to their sources, then snapshots restore the original tags.
func rollbackTracks(tags TagWriter, done []trackExec) error {
	for i := len(done) - 1; i >= 0; i-- {
		exec := done[i]
		if exec.moved {
			if err := fileutil.MoveFile(exec.dstAbs, exec.srcAbs); err != nil {
				return fmt.Errorf("restore %s: %w", exec.srcAbs, err)
			}
			if relocator, relocates := tags.(Relocator); relocates {
				if err := relocator.Relocate(exec.dstAbs, exec.srcAbs); err != nil {
					return fmt.Errorf("restore tag storage for %s: %w", exec.srcAbs, err)
				}
			}
		}
		if exec.tagged {
			if err := tags.WriteTags(exec.srcAbs, exec.before); err != nil {
				return fmt.Errorf("restore tags for %s: %w", exec.srcAbs, err)
			}
		}
	}
	return nil
}

// record appends the audit entry for this attempt. Recording is best-effort
// relative to the apply outcome, but failures are logged loudly.
func (a *Applier) record(ctx context.Context, txnID string, p *plan.Plan, done []trackExec, outcome string, cause error) {
	rep := report{
		TxnID:    txnID,
		DirID:    p.DirID,
		PlanHash: p.Hash,
		Outcome:  outcome,
	}
	if cause != nil {
		rep.Error = cause.Error()
	}
	for _, exec := range done {
		rep.Tracks = append(rep.Tracks, trackReport{
			SourcePath:  exec.srcAbs,
			TargetPath:  exec.dstAbs,
			BeforeTags:  exec.before,
			AppliedTags: exec.applied,
		})
	}
	data, err := json.Marshal(&rep)
	if err != nil {
		a.logger.Error("encode apply report failed", logging.Error(err))
		return
	}
	if err := a.store.RecordApply(ctx, &state.ApplyRecord{
		TxnID:      txnID,
		DirID:      p.DirID,
		PlanHash:   p.Hash,
		Outcome:    outcome,
		RecordJSON: string(data),
	}); err != nil {
		a.logger.Error("persist apply record failed", logging.Error(err))
	}
}

// lockSet is the sorted absolute path set an apply touches.
func (a *Applier) lockSet(dirPath string, active []plan.TrackPlan) []string {
	paths := make([]string, 0, len(active)*2)
	for _, track := range active {
		paths = append(paths,
			filepath.Join(dirPath, track.SourcePath),
			filepath.Join(a.cfg.Paths.LibraryDir, filepath.FromSlash(track.TargetRelPath)))
	}
	sort.Strings(paths)
	return paths
}

// report is the persisted audit payload for one apply attempt.
type report struct {
	TxnID    string        `json:"txn_id"`
	DirID    string        `json:"dir_id"`
	PlanHash string        `json:"plan_hash"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Tracks   []trackReport `json:"tracks,omitempty"`
}

type trackReport struct {
	SourcePath  string        `json:"source_path"`
	TargetPath  string        `json:"target_path"`
	BeforeTags  plan.TagPatch `json:"before_tags"`
	AppliedTags plan.TagPatch `json:"applied_tags"`
}

// mergeTags overlays the patch on the snapshot. Zero patch fields keep the
// original values.
func mergeTags(before, patch plan.TagPatch) plan.TagPatch {
	merged := before
	if patch.Artist != "" {
		merged.Artist = patch.Artist
	}
	if patch.AlbumArtist != "" {
		merged.AlbumArtist = patch.AlbumArtist
	}
	if patch.Album != "" {
		merged.Album = patch.Album
	}
	if patch.Title != "" {
		merged.Title = patch.Title
	}
	if patch.TrackNum > 0 {
		merged.TrackNum = patch.TrackNum
	}
	if patch.TrackTotal > 0 {
		merged.TrackTotal = patch.TrackTotal
	}
	if patch.DiscNum > 0 {
		merged.DiscNum = patch.DiscNum
	}
	if patch.DiscTotal > 0 {
		merged.DiscTotal = patch.DiscTotal
	}
	if patch.Year > 0 {
		merged.Year = patch.Year
	}
	return merged
}
