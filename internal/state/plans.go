package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tonearm/internal/plan"
)

// SavePlan persists a plan keyed by its content hash. Saving the same plan
// twice is a no-op, so planning stays idempotent.
func (s *Store) SavePlan(ctx context.Context, p *plan.Plan) error {
	if p == nil || p.Hash == "" {
		return fmt.Errorf("save plan: missing hash")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("serialize plan: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO plans (plan_hash, dir_id, plan_json, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(plan_hash) DO NOTHING`,
		p.Hash, p.DirID, string(data), s.timestamp(),
	); err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by hash and verifies its integrity before returning it.
func (s *Store) GetPlan(ctx context.Context, planHash string) (*plan.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT plan_json FROM plans WHERE plan_hash = ?`, planHash)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var p plan.Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", planHash, err)
	}
	ok, err := p.Verify()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("stored plan %s failed hash verification", planHash)
	}
	return &p, nil
}

// LatestPlanForDir returns the most recently saved plan for a directory.
func (s *Store) LatestPlanForDir(ctx context.Context, dirID string) (*plan.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT plan_hash FROM plans WHERE dir_id = ? ORDER BY created_at DESC, plan_hash DESC LIMIT 1`,
		dirID)
	var hash string
	if err := row.Scan(&hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read latest plan: %w", err)
	}
	return s.GetPlan(ctx, hash)
}
