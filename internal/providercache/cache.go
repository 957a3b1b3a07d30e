package providercache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tonearm/internal/faults"
	"tonearm/internal/logging"
)

// Cache is a namespaced provider-response store backed by sqlite.
type Cache struct {
	db         *sql.DB
	path       string
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time
}

// Option customises cache construction.
type Option func(*Cache)

// WithClock injects the timestamp source used for persisted rows.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    provider TEXT NOT NULL,
    kind TEXT NOT NULL,
    query TEXT NOT NULL,
    client_version TEXT NOT NULL,
    payload BLOB NOT NULL,
    checksum TEXT NOT NULL,
    created_at TEXT NOT NULL,
    UNIQUE(provider, kind, query, client_version)
);
CREATE INDEX IF NOT EXISTS idx_entries_provider ON entries(provider);
`

// Open initializes or connects to the cache database at path.
func Open(path string, maxEntriesPerNamespace int, logger *slog.Logger, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	cache := &Cache{
		db:         db,
		path:       path,
		maxEntries: maxEntriesPerNamespace,
		logger:     logging.NewComponentLogger(logger, "providercache"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached payload for key, if present. A stored payload whose
// checksum no longer matches is reported as cache corruption, never silently
// returned.
func (c *Cache) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, faults.Wrap(faults.ErrValidation, "cache", "get", err.Error(), nil)
	}
	row := c.db.QueryRowContext(
		ctx,
		`SELECT payload, checksum FROM entries WHERE provider = ? AND kind = ? AND query = ? AND client_version = ?`,
		key.Provider, key.Kind, key.Query, key.ClientVersion,
	)
	var payload []byte
	var checksum string
	if err := row.Scan(&payload, &checksum); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}
	if sum := checksumOf(payload); sum != checksum {
		return nil, false, faults.Wrap(
			faults.ErrCacheCorruption,
			"cache", "verify payload",
			fmt.Sprintf("entry %s/%s checksum mismatch: stored %s, computed %s", key.Provider, key.Kind, checksum, sum),
			nil,
		)
	}
	return payload, true, nil
}

// Put stores payload under key and evicts the oldest entries of the
// provider's namespace when it exceeds the configured bound. The write is a
// single upsert, so readers never observe a partial payload.
func (c *Cache) Put(ctx context.Context, key Key, payload []byte) error {
	if err := key.Validate(); err != nil {
		return faults.Wrap(faults.ErrValidation, "cache", "put", err.Error(), nil)
	}
	if len(payload) == 0 {
		return faults.Wrap(faults.ErrValidation, "cache", "put", "empty payload", nil)
	}
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO entries (provider, kind, query, client_version, payload, checksum, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(provider, kind, query, client_version)
         DO UPDATE SET payload = excluded.payload, checksum = excluded.checksum, created_at = excluded.created_at`,
		key.Provider, key.Kind, key.Query, key.ClientVersion,
		payload, checksumOf(payload),
		c.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return c.evictIfNeeded(ctx, key.Provider)
}

// evictIfNeeded trims a provider namespace to the configured bound, removing
// entries strictly in insertion order. Access recency never matters.
func (c *Cache) evictIfNeeded(ctx context.Context, provider string) error {
	if c.maxEntries <= 0 {
		return nil
	}
	res, err := c.db.ExecContext(
		ctx,
		`DELETE FROM entries WHERE provider = ? AND seq NOT IN (
            SELECT seq FROM entries WHERE provider = ? ORDER BY seq DESC LIMIT ?
        )`,
		provider, provider, c.maxEntries,
	)
	if err != nil {
		return fmt.Errorf("evict cache entries: %w", err)
	}
	if evicted, rowsErr := res.RowsAffected(); rowsErr == nil && evicted > 0 {
		c.logger.Debug("evicted cache entries",
			logging.String("provider", provider),
			logging.Int64("evicted", evicted))
	}
	return nil
}

// PurgeStaleVersions removes every entry of the provider whose client
// version differs from current. Other providers are untouched.
func (c *Cache) PurgeStaleVersions(ctx context.Context, provider, currentVersion string) (int64, error) {
	res, err := c.db.ExecContext(
		ctx,
		`DELETE FROM entries WHERE provider = ? AND client_version != ?`,
		provider, currentVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("purge stale versions: %w", err)
	}
	return res.RowsAffected()
}

// NamespaceStats summarizes one provider namespace.
type NamespaceStats struct {
	Provider string
	Entries  int64
	Bytes    int64
}

// Stats returns per-provider entry counts ordered by provider name.
func (c *Cache) Stats(ctx context.Context) ([]NamespaceStats, error) {
	rows, err := c.db.QueryContext(
		ctx,
		`SELECT provider, COUNT(1), COALESCE(SUM(LENGTH(payload)), 0) FROM entries GROUP BY provider ORDER BY provider`,
	)
	if err != nil {
		return nil, fmt.Errorf("query cache stats: %w", err)
	}
	defer rows.Close()
	var stats []NamespaceStats
	for rows.Next() {
		var s NamespaceStats
		if err := rows.Scan(&s.Provider, &s.Entries, &s.Bytes); err != nil {
			return nil, fmt.Errorf("scan cache stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Prune removes every entry of the named provider. With an empty provider it
// clears the whole cache.
func (c *Cache) Prune(ctx context.Context, provider string) (int64, error) {
	var res sql.Result
	var err error
	if provider == "" {
		res, err = c.db.ExecContext(ctx, `DELETE FROM entries`)
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM entries WHERE provider = ?`, provider)
	}
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}

func checksumOf(payload []byte) string {
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum[:])
}
