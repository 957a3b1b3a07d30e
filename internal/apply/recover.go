package apply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"tonearm/internal/faults"
	"tonearm/internal/fileutil"
	"tonearm/internal/logging"
	"tonearm/internal/plan"
	"tonearm/internal/state"
)

// Recover settles every apply transaction left open by a crash, rolling each
// one back from its journal. It runs before any new apply so a half-moved
// directory can never be mutated again on top of the wreckage. Returns the
// number of transactions settled.
func (a *Applier) Recover(ctx context.Context) (int, error) {
	pending, err := a.store.PendingTransactions(ctx)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, txn := range pending {
		if err := a.recoverTxn(ctx, txn); err != nil {
			return settled, err
		}
		settled++
	}
	return settled, nil
}

func (a *Applier) recoverTxn(ctx context.Context, txn state.PendingTransaction) error {
	a.logger.Warn("recovering interrupted apply",
		logging.String(logging.FieldDirID, txn.DirID),
		logging.String(logging.FieldPlanHash, txn.PlanHash),
		logging.Int("journaled_tracks", len(txn.Entries)))

	if err := a.store.SetNeedsRecovery(ctx, txn.DirID, true); err != nil && !errors.Is(err, state.ErrNotFound) {
		return err
	}

	for i := len(txn.Entries) - 1; i >= 0; i-- {
		if err := a.undoEntry(txn.Entries[i]); err != nil {
			a.record(ctx, txn.TxnID, &plan.Plan{DirID: txn.DirID, Hash: txn.PlanHash}, nil, state.OutcomeFailed, err)
			return faults.Wrap(faults.ErrRollbackFailure, "recover", "undo journal",
				fmt.Sprintf("transaction %s for directory %s", txn.TxnID, txn.DirID), err)
		}
	}

	if err := a.store.FinishTransaction(ctx, txn.TxnID, state.TxnRolledBack); err != nil {
		return err
	}
	a.record(ctx, txn.TxnID, &plan.Plan{DirID: txn.DirID, Hash: txn.PlanHash}, nil, state.OutcomeRecovered, nil)
	if err := a.store.SetNeedsRecovery(ctx, txn.DirID, false); err != nil && !errors.Is(err, state.ErrNotFound) {
		return err
	}
	return nil
}

// undoEntry reverses one journaled track. The journal step says how far the
// track provably got, but a crash can land between a mutation and its journal
// advance, so the move is undone from filesystem reality: a present target
// with a missing source always goes back.
func (a *Applier) undoEntry(entry state.JournalEntry) error {
	if _, err := os.Stat(entry.TargetPath); err == nil {
		if _, srcErr := os.Stat(entry.SourcePath); errors.Is(srcErr, fs.ErrNotExist) {
			if err := fileutil.MoveFile(entry.TargetPath, entry.SourcePath); err != nil {
				return fmt.Errorf("restore %s: %w", entry.SourcePath, err)
			}
			if relocator, relocates := a.tags.(Relocator); relocates {
				if err := relocator.Relocate(entry.TargetPath, entry.SourcePath); err != nil {
					return fmt.Errorf("restore tag storage for %s: %w", entry.SourcePath, err)
				}
			}
		}
	}

	if entry.Step == state.StepIntent {
		return nil
	}
	var before plan.TagPatch
	if err := json.Unmarshal([]byte(entry.BeforeTagsJSON), &before); err != nil {
		return fmt.Errorf("decode tag snapshot: %w", err)
	}
	if err := a.tags.WriteTags(entry.SourcePath, before); err != nil {
		return fmt.Errorf("restore tags for %s: %w", entry.SourcePath, err)
	}
	return nil
}
