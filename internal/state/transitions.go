package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tonearm/internal/logging"
)

// MarkQueued records identification output that needs a pin decision.
func (s *Store) MarkQueued(ctx context.Context, dirID, settingsHash, candidatesJSON string) error {
	return s.transition(ctx, dirID, StatusQueued,
		`UPDATE directories
         SET status = ?, settings_hash = ?, candidates_json = ?,
             pinned_provider = '', pinned_release_id = '', jail_reason = '', updated_at = ?
         WHERE dir_id = ? AND status IN (`,
		[]any{StatusQueued, settingsHash, candidatesJSON},
		StatusScanned, StatusQueued)
}

// MarkResolved pins a release, making the directory eligible for planning.
func (s *Store) MarkResolved(ctx context.Context, dirID, settingsHash, provider, releaseID string) error {
	if provider == "" || releaseID == "" {
		return fmt.Errorf("pin requires provider and release id")
	}
	return s.transition(ctx, dirID, StatusResolved,
		`UPDATE directories
         SET status = ?, settings_hash = ?, pinned_provider = ?, pinned_release_id = ?,
             jail_reason = '', updated_at = ?
         WHERE dir_id = ? AND status IN (`,
		[]any{StatusResolved, settingsHash, provider, releaseID},
		StatusScanned, StatusQueued)
}

// MarkJailed parks the directory for manual attention with a reason.
func (s *Store) MarkJailed(ctx context.Context, dirID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "jailed without reason"
	}
	return s.transition(ctx, dirID, StatusJailed,
		`UPDATE directories
         SET status = ?, jail_reason = ?, updated_at = ?
         WHERE dir_id = ? AND status IN (`,
		[]any{StatusJailed, reason},
		StatusScanned, StatusQueued, StatusResolved)
}

// MarkApplied finishes the lifecycle. Only a resolved directory can be
// applied, and the plan hash is pinned to the row for the no-re-match check.
func (s *Store) MarkApplied(ctx context.Context, dirID, planHash string) error {
	return s.transition(ctx, dirID, StatusApplied,
		`UPDATE directories
         SET status = ?, applied_plan_hash = ?, updated_at = ?
         WHERE dir_id = ? AND status IN (`,
		[]any{StatusApplied, planHash},
		StatusResolved)
}

// Requeue sends a directory back to scanned, clearing identification output
// and any pin. Used when the relevant settings changed or an operator releases
// a jailed directory.
func (s *Store) Requeue(ctx context.Context, dirID string) error {
	return s.transition(ctx, dirID, StatusScanned,
		`UPDATE directories
         SET status = ?, candidates_json = '', settings_hash = '', pinned_provider = '',
             pinned_release_id = '', jail_reason = '', updated_at = ?
         WHERE dir_id = ? AND status IN (`,
		[]any{StatusScanned},
		StatusScanned, StatusQueued, StatusResolved, StatusJailed, StatusApplied)
}

// transition runs a guarded status update. The WHERE clause carries the legal
// source statuses, so a concurrent or out-of-order caller affects zero rows
// and gets ErrInvalidTransition instead of clobbering newer state.
func (s *Store) transition(ctx context.Context, dirID string, to Status, queryPrefix string, setArgs []any, from ...Status) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(from)), ",")
	args := make([]any, 0, len(setArgs)+len(from)+2)
	args = append(args, setArgs...)
	args = append(args, s.timestamp(), dirID)
	for _, status := range from {
		args = append(args, string(status))
	}
	res, err := s.db.ExecContext(ctx, queryPrefix+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", dirID, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition %s to %s: %w", dirID, to, err)
	}
	if affected == 0 {
		current, getErr := s.GetByID(ctx, dirID)
		if errors.Is(getErr, ErrNotFound) {
			return fmt.Errorf("transition %s to %s: %w", dirID, to, ErrNotFound)
		}
		if getErr != nil {
			return getErr
		}
		return fmt.Errorf("transition %s from %s to %s: %w", dirID, current.Status, to, ErrInvalidTransition)
	}
	s.logger.Info("directory transition",
		logging.String(logging.FieldDirID, dirID),
		logging.String("status", string(to)))
	return nil
}

// SetNeedsRecovery flags or clears the recovery marker without touching the
// directory status.
func (s *Store) SetNeedsRecovery(ctx context.Context, dirID string, needsRecovery bool) error {
	flag := 0
	if needsRecovery {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE directories SET needs_recovery = ?, updated_at = ? WHERE dir_id = ?`,
		flag, s.timestamp(), dirID)
	if err != nil {
		return fmt.Errorf("set needs_recovery for %s: %w", dirID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("set needs_recovery for %s: %w", dirID, ErrNotFound)
	}
	return nil
}
