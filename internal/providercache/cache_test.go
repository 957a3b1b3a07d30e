package providercache_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tonearm/internal/faults"
	"tonearm/internal/logging"
	"tonearm/internal/providercache"
)

func openCache(t *testing.T, maxEntries int) *providercache.Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	cache, err := providercache.Open(path, maxEntries, logging.NewNop(),
		providercache.WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	if err != nil {
		t.Fatalf("providercache.Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func key(query string) providercache.Key {
	return providercache.Key{
		Provider:      "musicbrainz",
		Kind:          providercache.KindMetadata,
		Query:         query,
		ClientVersion: "v1",
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	cache := openCache(t, 100)
	ctx := context.Background()

	if err := cache.Put(ctx, key("q"), []byte(`{"releases":[]}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	payload, ok, err := cache.Get(ctx, key("q"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(payload) != `{"releases":[]}` {
		t.Fatalf("unexpected payload: ok=%v %q", ok, payload)
	}
}

func TestGetMissReturnsNotFound(t *testing.T) {
	cache := openCache(t, 100)
	_, ok, err := cache.Get(context.Background(), key("absent"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestVersionIsPartOfKey(t *testing.T) {
	cache := openCache(t, 100)
	ctx := context.Background()

	k1 := key("q")
	if err := cache.Put(ctx, k1, []byte("v1-payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	k2 := k1
	k2.ClientVersion = "v2"
	if _, ok, _ := cache.Get(ctx, k2); ok {
		t.Fatal("version bump must miss old entries")
	}

	purged, err := cache.PurgeStaleVersions(ctx, "musicbrainz", "v2")
	if err != nil {
		t.Fatalf("PurgeStaleVersions: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged entry, got %d", purged)
	}
}

func TestPurgeLeavesOtherProvidersAlone(t *testing.T) {
	cache := openCache(t, 100)
	ctx := context.Background()

	other := providercache.Key{Provider: "acoustid", Kind: providercache.KindFingerprint, Query: "fp@10", ClientVersion: "v1"}
	if err := cache.Put(ctx, other, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := cache.PurgeStaleVersions(ctx, "musicbrainz", "v9"); err != nil {
		t.Fatalf("PurgeStaleVersions: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, other); !ok {
		t.Fatal("purge of musicbrainz must not touch acoustid entries")
	}
}

func TestEvictionIsOldestFirst(t *testing.T) {
	cache := openCache(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		k := key(fmt.Sprintf("q-%d", i))
		if err := cache.Put(ctx, k, []byte(fmt.Sprintf("payload-%d", i))); err != nil {
			t.Fatalf("Put %d: %v", i, err)
		}
	}

	// The two oldest insertions are gone, the three newest remain.
	for i := 0; i < 2; i++ {
		if _, ok, _ := cache.Get(ctx, key(fmt.Sprintf("q-%d", i))); ok {
			t.Fatalf("expected q-%d evicted", i)
		}
	}
	for i := 2; i < 5; i++ {
		if _, ok, _ := cache.Get(ctx, key(fmt.Sprintf("q-%d", i))); !ok {
			t.Fatalf("expected q-%d retained", i)
		}
	}
}

func TestStats(t *testing.T) {
	cache := openCache(t, 100)
	ctx := context.Background()
	_ = cache.Put(ctx, key("a"), []byte("xx"))
	_ = cache.Put(ctx, providercache.Key{Provider: "acoustid", Kind: "fingerprint", Query: "f@1", ClientVersion: "v1"}, []byte("yy"))

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 2 || stats[0].Provider != "acoustid" || stats[1].Provider != "musicbrainz" {
		t.Fatalf("unexpected stats ordering: %+v", stats)
	}
}

func TestRejectsIncompleteKey(t *testing.T) {
	cache := openCache(t, 100)
	bad := providercache.Key{Provider: "musicbrainz", Kind: "", Query: "q", ClientVersion: "v1"}
	if err := cache.Put(context.Background(), bad, []byte("x")); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFingerprintQueryBuckets(t *testing.T) {
	a := providercache.FingerprintQuery("fp", 240)
	b := providercache.FingerprintQuery("fp", 246)
	c := providercache.FingerprintQuery("fp", 248)
	if a != b {
		t.Fatalf("durations within a bucket must share a key: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("durations across buckets must differ: %q vs %q", a, c)
	}
}

func TestMetadataQueryNormalizes(t *testing.T) {
	a := providercache.MetadataQuery("Sigur Rós", "Takk...", 11)
	b := providercache.MetadataQuery("sigur ros", "takk", 11)
	if a == "" || a != b {
		t.Fatalf("expected normalized queries to match: %q vs %q", a, b)
	}
}
