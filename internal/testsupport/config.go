package testsupport

import (
	"path/filepath"
	"testing"
	"time"

	"tonearm/internal/config"
	"tonearm/internal/logging"
	"tonearm/internal/providercache"
	"tonearm/internal/state"
)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.LibraryDir = filepath.Join(base, "library")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// FixedClock returns a deterministic clock for persisted-record tests.
func FixedClock() func() time.Time {
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return func() time.Time { return base }
}

// MustOpenCache opens a provider cache for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *providercache.Cache {
	t.Helper()

	cache, err := providercache.Open(cfg.CacheDBPath(), cfg.Cache.MaxEntriesPerNamespace, logging.NewNop(),
		providercache.WithClock(FixedClock()))
	if err != nil {
		t.Fatalf("providercache.Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

// MustOpenState opens a state store for tests and registers cleanup.
func MustOpenState(t testing.TB, cfg *config.Config) *state.Store {
	t.Helper()

	store, err := state.Open(cfg.StateDBPath(), logging.NewNop(),
		state.WithClock(FixedClock()))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
