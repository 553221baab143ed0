package duracache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T, opts ...Option[string]) *Cache[string] {
	t.Helper()
	all := append([]Option[string]{WithDir[string](t.TempDir())}, opts...)
	c, err := New[string](all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBasicSetGet(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("a", "A"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := c.Get("a")
	if err != nil || !ok || v != "A" {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
	ttl, err := c.TTL("a")
	if err != nil || ttl != -1 {
		t.Fatalf("TTL: %v err=%v", ttl, err)
	}
	exists, err := c.Exists("a")
	if err != nil || !exists {
		t.Fatalf("Exists: %v err=%v", exists, err)
	}
	size, err := c.Size()
	if err != nil || size != 1 {
		t.Fatalf("Size: %v err=%v", size, err)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("k", "v", 50*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if v, ok, err := c.Get("k"); err != nil || !ok || v != "v" {
		t.Fatalf("Get before expiry: v=%q ok=%v err=%v", v, ok, err)
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok, err := c.Get("k"); err != nil || ok {
		t.Fatalf("expected miss after expiry, ok=%v err=%v", ok, err)
	}
	if ttl, err := c.TTL("k"); err != nil || ttl != -2 {
		t.Fatalf("TTL after expiry: %v err=%v", ttl, err)
	}
}

func TestMemoryToDiskPromotion(t *testing.T) {
	c := newTestCache(t, WithMaxMemoryItems[string](1))

	if err := c.Set("a", "A"); err != nil {
		t.Fatalf("Set a: %v", err)
	}
	if err := c.Set("b", "B"); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	// memory now holds only "b"; "a" survives on disk.
	if v, ok, err := c.Get("a"); err != nil || !ok || v != "A" {
		t.Fatalf("Get a (disk hit): v=%q ok=%v err=%v", v, ok, err)
	}
	if stats := c.Stats(); stats.MemoryItems != 1 {
		t.Fatalf("expected memory.items == 1 after promotion, got %d", stats.MemoryItems)
	}
}

func TestOversizedValueNeverOccupiesMemory(t *testing.T) {
	c := newTestCache(t, WithMaxMemorySize[string](4))

	const big = "this value serializes to well over four bytes"
	if err := c.Set("big", big); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if stats := c.Stats(); stats.MemoryItems != 0 {
		t.Fatalf("oversized value must not enter memory, got %d items", stats.MemoryItems)
	}
	v, ok, err := c.Get("big")
	if err != nil || !ok || v != big {
		t.Fatalf("Get: v=%q ok=%v err=%v", v, ok, err)
	}
	if stats := c.Stats(); stats.MemoryItems != 0 {
		t.Fatalf("oversized value must still not enter memory after Get, got %d items", stats.MemoryItems)
	}
}

// Hash-collision handling itself is exercised at the filestore layer
// (internal/filestore's TestHashCollisionEvictsPriorOwner, which can inject a
// colliding hash function); here we confirm the coordinator's half of the
// contract: when disk drops a key under space pressure, memory drops it too.
func TestDiskEvictionMirrorsIntoMemory(t *testing.T) {
	c := newTestCache(t)

	if err := c.Set("cold", "A"); err != nil {
		t.Fatalf("Set cold: %v", err)
	}
	if _, ok, err := c.Get("cold"); err != nil || !ok {
		t.Fatalf("warm up cold into memory: ok=%v err=%v", ok, err)
	}
	if stats := c.Stats(); stats.MemoryItems != 1 {
		t.Fatalf("expected cold to be in memory, got %d items", stats.MemoryItems)
	}

	// Squeeze the disk tier so the next write has to evict "cold" for space;
	// the FileStore's OnEvict upcall (wired to Cache.handleEvict) must mirror
	// that eviction into the memory tier.
	diskSize := c.disk.Size()
	c.disk.SetMaxSizeForTest(diskSize)
	if err := c.Set("warm", "B"); err != nil {
		t.Fatalf("Set warm: %v", err)
	}

	if stats := c.Stats(); stats.MemoryItems != 1 {
		t.Fatalf("expected eviction upcall to drop cold from memory, got %d items", stats.MemoryItems)
	}
	if _, ok, _ := c.Get("cold"); ok {
		t.Fatal("evicted key should not be readable from disk either")
	}
	if v, ok, _ := c.Get("warm"); !ok || v != "B" {
		t.Fatalf("warm should be readable, v=%q ok=%v", v, ok)
	}
}

func TestGetOrSetStampede(t *testing.T) {
	c := newTestCache(t)

	var calls atomic.Int64
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "x", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrSet(context.Background(), "e", fn, 10*time.Second)
			if err != nil {
				t.Errorf("GetOrSet: %v", err)
				return
			}
			results[i] = v
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected fn called exactly once, got %d", calls.Load())
	}
	for i, v := range results {
		if v != "x" {
			t.Fatalf("result[%d] = %q, want x", i, v)
		}
	}
	if v, ok, err := c.Get("e"); err != nil || !ok || v != "x" {
		t.Fatalf("Get after GetOrSet: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestGetOrSetFailurePropagatesAndRetries(t *testing.T) {
	c := newTestCache(t)
	boom := errors.New("boom")

	var calls atomic.Int64
	failing := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	}

	_, err := c.GetOrSet(context.Background(), "e", failing)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}

	succeeding := func(ctx context.Context) (string, error) { return "ok", nil }
	v, err := c.GetOrSet(context.Background(), "e", succeeding)
	if err != nil || v != "ok" {
		t.Fatalf("expected second call to retry fn, v=%q err=%v", v, err)
	}
	if calls.Load() != 1 {
		t.Fatalf("failing fn should have been called once, got %d", calls.Load())
	}
}

func TestNamespaceIsolation(t *testing.T) {
	dir := t.TempDir()
	a := newTestCache(t, WithDir[string](dir), WithNamespace[string]("a"))
	b := newTestCache(t, WithDir[string](dir), WithNamespace[string]("b"))

	if err := a.Set("k", "A"); err != nil {
		t.Fatalf("a.Set: %v", err)
	}
	if err := b.Set("k", "B"); err != nil {
		t.Fatalf("b.Set: %v", err)
	}

	if v, ok, err := a.Get("k"); err != nil || !ok || v != "A" {
		t.Fatalf("a.Get: v=%q ok=%v err=%v", v, ok, err)
	}
	if v, ok, err := b.Get("k"); err != nil || !ok || v != "B" {
		t.Fatalf("b.Get: v=%q ok=%v err=%v", v, ok, err)
	}
	keys, err := a.Keys("*")
	if err != nil {
		t.Fatalf("a.Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "k" {
		t.Fatalf("a.Keys = %v, want [k]", keys)
	}
}

func TestRestartPersistence(t *testing.T) {
	dir := t.TempDir()

	c1, err := New[string](WithDir[string](dir))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c1.Set("p", "v", 60*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c1.Set("gone", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set gone: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	_ = c1.Close()

	c2, err := New[string](WithDir[string](dir))
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	defer c2.Close()

	v, ok, err := c2.Get("p")
	if err != nil || !ok || v != "v" {
		t.Fatalf("Get p after restart: v=%q ok=%v err=%v", v, ok, err)
	}
	ttl, err := c2.TTL("p")
	if err != nil || ttl < 59 {
		t.Fatalf("TTL p after restart: %v err=%v", ttl, err)
	}
	if _, ok, _ := c2.Get("gone"); ok {
		t.Fatal("expired-before-reopen key should not survive restart")
	}
}

func TestGzipMigration(t *testing.T) {
	dir := t.TempDir()

	c1, err := New[string](WithDir[string](dir), WithGzip[string](false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c1.Set("plain", "p1"); err != nil {
		t.Fatalf("Set plain: %v", err)
	}
	_ = c1.Close()

	c2, err := New[string](WithDir[string](dir), WithGzip[string](true))
	if err != nil {
		t.Fatalf("New gzip: %v", err)
	}
	if v, ok, err := c2.Get("plain"); err != nil || !ok || v != "p1" {
		t.Fatalf("Get plain via gzip-enabled cache: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := c2.Set("compressed", "c1"); err != nil {
		t.Fatalf("Set compressed: %v", err)
	}
	_ = c2.Close()

	c3, err := New[string](WithDir[string](dir), WithGzip[string](false))
	if err != nil {
		t.Fatalf("New plain again: %v", err)
	}
	defer c3.Close()
	if v, ok, err := c3.Get("plain"); err != nil || !ok || v != "p1" {
		t.Fatalf("Get plain via final cache: v=%q ok=%v err=%v", v, ok, err)
	}
	if v, ok, err := c3.Get("compressed"); err != nil || !ok || v != "c1" {
		t.Fatalf("Get compressed via final cache: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestDelAndClear(t *testing.T) {
	c := newTestCache(t)

	_ = c.Set("a", "A")
	_ = c.Set("b", "B")

	had, err := c.Del("a")
	if err != nil || !had {
		t.Fatalf("Del a: had=%v err=%v", had, err)
	}
	if _, ok, _ := c.Get("a"); ok {
		t.Fatal("a should be gone after Del")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	keys, err := c.Keys("*")
	if err != nil || len(keys) != 0 {
		t.Fatalf("Keys after Clear: %v err=%v", keys, err)
	}
}

func TestExpirePersist(t *testing.T) {
	c := newTestCache(t)
	_ = c.Set("k", "v")

	ok, err := c.Expire("k", 5)
	if err != nil || !ok {
		t.Fatalf("Expire: ok=%v err=%v", ok, err)
	}
	ttl, err := c.TTL("k")
	if err != nil || ttl < 4 || ttl > 5 {
		t.Fatalf("TTL after Expire: %v err=%v", ttl, err)
	}

	ok, err = c.Persist("k")
	if err != nil || !ok {
		t.Fatalf("Persist: ok=%v err=%v", ok, err)
	}
	if ttl, err := c.TTL("k"); err != nil || ttl != -1 {
		t.Fatalf("TTL after Persist: %v err=%v", ttl, err)
	}
}

func TestMGetMSet(t *testing.T) {
	c := newTestCache(t)

	err := c.MSet([]MSetEntry[string]{
		{Key: "a", Value: "A"},
		{Key: "b", Value: "B"},
	})
	if err != nil {
		t.Fatalf("MSet: %v", err)
	}

	got, err := c.MGet([]string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 3 || got[0] == nil || *got[0] != "A" || got[1] == nil || *got[1] != "B" || got[2] != nil {
		t.Fatalf("unexpected MGet result: %+v", dereference(got))
	}
}

func dereference(ptrs []*string) []string {
	out := make([]string, len(ptrs))
	for i, p := range ptrs {
		if p != nil {
			out[i] = *p
		} else {
			out[i] = "<nil>"
		}
	}
	return out
}

func TestClosedCacheRejectsOperations(t *testing.T) {
	c := newTestCache(t)
	_ = c.Close()

	if _, _, err := c.Get("a"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get after Close: %v", err)
	}
	if err := c.Set("a", "A"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set after Close: %v", err)
	}
	// Close is idempotent.
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestInvalidValueRejected(t *testing.T) {
	type unserializable struct{ F func() }
	c, err := New[unserializable](WithDir[unserializable](t.TempDir()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	err = c.Set("k", unserializable{F: func() {}})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}
