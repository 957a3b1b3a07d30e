package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BeginTransaction opens an apply transaction. The row exists before any file
// is touched, so a crash between here and FinishTransaction always leaves a
// discoverable open transaction.
func (s *Store) BeginTransaction(ctx context.Context, txnID, dirID, planHash string) error {
	if txnID == "" || dirID == "" || planHash == "" {
		return fmt.Errorf("begin transaction: txn id, dir id, and plan hash are required")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO apply_txns (txn_id, dir_id, plan_hash, state, started_at)
         VALUES (?, ?, ?, ?, ?)`,
		txnID, dirID, planHash, TxnOpen, s.timestamp(),
	); err != nil {
		return fmt.Errorf("insert apply txn: %w", err)
	}
	return nil
}

// JournalIntent writes a track's journal row ahead of its mutation.
func (s *Store) JournalIntent(ctx context.Context, entry JournalEntry) error {
	if entry.TxnID == "" {
		return fmt.Errorf("journal intent: missing txn id")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO apply_journal (txn_id, track_index, source_path, target_path, before_tags_json, step, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.TxnID, entry.TrackIndex, entry.SourcePath, entry.TargetPath,
		entry.BeforeTagsJSON, StepIntent, s.timestamp(),
	); err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// AdvanceJournal moves a track's journal row to the given step.
func (s *Store) AdvanceJournal(ctx context.Context, txnID string, trackIndex int, step JournalStep) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE apply_journal SET step = ?, updated_at = ? WHERE txn_id = ? AND track_index = ?`,
		step, s.timestamp(), txnID, trackIndex)
	if err != nil {
		return fmt.Errorf("advance journal: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("advance journal: entry %s/%d: %w", txnID, trackIndex, ErrNotFound)
	}
	return nil
}

// FinishTransaction closes an apply transaction with its final state. The
// journal rows stay in place for audit.
func (s *Store) FinishTransaction(ctx context.Context, txnID string, final TxnState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE apply_txns SET state = ?, finished_at = ? WHERE txn_id = ? AND state = ?`,
		final, s.timestamp(), txnID, TxnOpen)
	if err != nil {
		return fmt.Errorf("finish transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("finish transaction %s: not open: %w", txnID, ErrInvalidTransition)
	}
	return nil
}

// PendingTransactions returns every transaction still open, with journal
// entries in track order. These are the transactions recovery must settle
// before any new apply runs.
func (s *Store) PendingTransactions(ctx context.Context) ([]PendingTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT txn_id, dir_id, plan_hash FROM apply_txns WHERE state = ? ORDER BY txn_id`,
		TxnOpen)
	if err != nil {
		return nil, fmt.Errorf("query open transactions: %w", err)
	}
	defer rows.Close()

	var pending []PendingTransaction
	for rows.Next() {
		var txn PendingTransaction
		if err := rows.Scan(&txn.TxnID, &txn.DirID, &txn.PlanHash); err != nil {
			return nil, fmt.Errorf("scan open transaction: %w", err)
		}
		pending = append(pending, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range pending {
		entries, err := s.journalEntries(ctx, pending[i].TxnID)
		if err != nil {
			return nil, err
		}
		pending[i].Entries = entries
	}
	return pending, nil
}

func (s *Store) journalEntries(ctx context.Context, txnID string) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT txn_id, track_index, source_path, target_path, before_tags_json, step
         FROM apply_journal WHERE txn_id = ? ORDER BY track_index`,
		txnID)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		var step string
		if err := rows.Scan(&entry.TxnID, &entry.TrackIndex, &entry.SourcePath,
			&entry.TargetPath, &entry.BeforeTagsJSON, &step); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.Step = JournalStep(step)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RecordApply appends one audit entry for an apply attempt.
func (s *Store) RecordApply(ctx context.Context, rec *ApplyRecord) error {
	if rec == nil || rec.DirID == "" {
		return fmt.Errorf("record apply: missing dir id")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO apply_records (txn_id, dir_id, plan_hash, outcome, record_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		rec.TxnID, rec.DirID, rec.PlanHash, rec.Outcome, rec.RecordJSON, s.timestamp(),
	); err != nil {
		return fmt.Errorf("insert apply record: %w", err)
	}
	return nil
}

// ListApplyRecords returns a directory's apply history, oldest first.
func (s *Store) ListApplyRecords(ctx context.Context, dirID string) ([]ApplyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, txn_id, dir_id, plan_hash, outcome, record_json, created_at
         FROM apply_records WHERE dir_id = ? ORDER BY id`,
		dirID)
	if err != nil {
		return nil, fmt.Errorf("query apply records: %w", err)
	}
	defer rows.Close()

	var records []ApplyRecord
	for rows.Next() {
		var rec ApplyRecord
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.TxnID, &rec.DirID, &rec.PlanHash,
			&rec.Outcome, &rec.RecordJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan apply record: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse apply record timestamp: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HasAppliedPlan reports whether the plan hash was already applied to the
// directory, which makes a repeat apply a no-op.
func (s *Store) HasAppliedPlan(ctx context.Context, dirID, planHash string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM apply_records WHERE dir_id = ? AND plan_hash = ? AND outcome = ? LIMIT 1`,
		dirID, planHash, OutcomeApplied)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check applied plan: %w", err)
	}
	return true, nil
}
