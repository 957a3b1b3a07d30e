package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tonearm/internal/evidence"
	"tonearm/internal/faults"
	"tonearm/internal/logging"
)

// Store manages directory lifecycle persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Option customises store construction.
type Option func(*Store)

// WithClock injects the timestamp source used for persisted rows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open initializes or connects to the state database at path and applies
// pending migrations.
func Open(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{
		db:     db,
		path:   path,
		logger: logging.NewComponentLogger(logger, "state"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// RegisterEvidence records a directory's evidence and returns its row.
//
// Identity is the evidence fingerprint: re-registering identical evidence
// from a new path updates the path and nothing else, so a moved directory
// keeps its dir_id, status, and pin. When the caller supplies a dir_id whose
// evidence changed, the row resets to scanned and every derived field is
// cleared, because earlier identification no longer describes the contents.
func (s *Store) RegisterEvidence(ctx context.Context, ev *evidence.DirEvidence) (*Directory, error) {
	if ev == nil {
		return nil, faults.Wrap(faults.ErrValidation, "state", "register evidence", "nil evidence", nil)
	}
	normalized := *ev
	normalized.Tracks = append([]evidence.TrackEvidence(nil), ev.Tracks...)
	normalized.Normalize()
	if err := normalized.Validate(); err != nil {
		return nil, err
	}
	fingerprint, err := normalized.FingerprintHash()
	if err != nil {
		return nil, err
	}
	evidenceJSON, err := json.Marshal(&normalized)
	if err != nil {
		return nil, fmt.Errorf("serialize evidence: %w", err)
	}

	if normalized.DirID != "" {
		existing, err := s.GetByID(ctx, normalized.DirID)
		switch {
		case err == nil:
			return s.reconcileEvidence(ctx, existing, fingerprint, normalized.Path, string(evidenceJSON))
		case errors.Is(err, ErrNotFound):
			// fall through to fingerprint lookup and insert
		default:
			return nil, err
		}
	}

	existing, err := s.getByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		if existing.Path != normalized.Path {
			if err := s.updatePath(ctx, existing.DirID, normalized.Path); err != nil {
				return nil, err
			}
		}
		return s.GetByID(ctx, existing.DirID)
	case errors.Is(err, ErrNotFound):
	default:
		return nil, err
	}

	dirID := normalized.DirID
	if dirID == "" {
		dirID = uuid.NewString()
	}
	ts := s.timestamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO directories (
            dir_id, path, status, evidence_fingerprint, evidence_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dirID, normalized.Path, StatusScanned, fingerprint, string(evidenceJSON), ts, ts,
	); err != nil {
		return nil, fmt.Errorf("insert directory: %w", err)
	}
	s.logger.Info("registered directory",
		logging.String(logging.FieldDirID, dirID),
		logging.String("path", normalized.Path))
	return s.GetByID(ctx, dirID)
}

// reconcileEvidence handles re-registration under a known dir_id. Unchanged
// evidence is a path refresh; changed evidence invalidates everything derived
// from the old contents.
func (s *Store) reconcileEvidence(ctx context.Context, existing *Directory, fingerprint, path, evidenceJSON string) (*Directory, error) {
	if existing.EvidenceFingerprint == fingerprint {
		if existing.Path != path {
			if err := s.updatePath(ctx, existing.DirID, path); err != nil {
				return nil, err
			}
		}
		return s.GetByID(ctx, existing.DirID)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE directories
         SET path = ?, status = ?, evidence_fingerprint = ?, evidence_json = ?,
             candidates_json = '', settings_hash = '', pinned_provider = '',
             pinned_release_id = '', applied_plan_hash = '', jail_reason = '', updated_at = ?
         WHERE dir_id = ?`,
		path, StatusScanned, fingerprint, evidenceJSON, s.timestamp(), existing.DirID,
	); err != nil {
		return nil, fmt.Errorf("reset directory %s: %w", existing.DirID, err)
	}
	s.logger.Info("evidence changed, directory reset",
		logging.String(logging.FieldDirID, existing.DirID),
		logging.String("previous_status", string(existing.Status)))
	return s.GetByID(ctx, existing.DirID)
}

func (s *Store) updatePath(ctx context.Context, dirID, path string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE directories SET path = ?, updated_at = ? WHERE dir_id = ?`,
		path, s.timestamp(), dirID,
	); err != nil {
		return fmt.Errorf("update directory path: %w", err)
	}
	return nil
}

const directoryColumns = `dir_id, path, status, evidence_fingerprint, evidence_json,
    candidates_json, settings_hash, pinned_provider, pinned_release_id,
    applied_plan_hash, needs_recovery, jail_reason, created_at, updated_at`

// GetByID returns the directory with the given id.
func (s *Store) GetByID(ctx context.Context, dirID string) (*Directory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+directoryColumns+` FROM directories WHERE dir_id = ?`, dirID)
	return scanDirectory(row)
}

func (s *Store) getByFingerprint(ctx context.Context, fingerprint string) (*Directory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+directoryColumns+` FROM directories WHERE evidence_fingerprint = ?`, fingerprint)
	return scanDirectory(row)
}

// ListByStatus returns directories in any of the given statuses, ordered by
// dir_id so iteration order never depends on insertion history.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Directory, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+directoryColumns+` FROM directories WHERE status IN (`+placeholders+`) ORDER BY dir_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list directories: %w", err)
	}
	defer rows.Close()
	return collectDirectories(rows)
}

// List returns every directory ordered by dir_id.
func (s *Store) List(ctx context.Context) ([]*Directory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+directoryColumns+` FROM directories ORDER BY dir_id`)
	if err != nil {
		return nil, fmt.Errorf("list directories: %w", err)
	}
	defer rows.Close()
	return collectDirectories(rows)
}

// Evidence deserializes the directory's stored evidence.
func (d *Directory) Evidence() (*evidence.DirEvidence, error) {
	var ev evidence.DirEvidence
	if err := json.Unmarshal([]byte(d.EvidenceJSON), &ev); err != nil {
		return nil, fmt.Errorf("decode evidence for %s: %w", d.DirID, err)
	}
	return &ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDirectory(row rowScanner) (*Directory, error) {
	var d Directory
	var status string
	var needsRecovery int64
	var createdAt, updatedAt string
	err := row.Scan(
		&d.DirID, &d.Path, &status, &d.EvidenceFingerprint, &d.EvidenceJSON,
		&d.CandidatesJSON, &d.SettingsHash, &d.PinnedProvider, &d.PinnedReleaseID,
		&d.AppliedPlanHash, &needsRecovery, &d.JailReason, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	d.Status = Status(status)
	d.NeedsRecovery = needsRecovery != 0
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &d, nil
}

func collectDirectories(rows *sql.Rows) ([]*Directory, error) {
	var dirs []*Directory
	for rows.Next() {
		d, err := scanDirectory(rows)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}
	return dirs, rows.Err()
}
