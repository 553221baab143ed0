package memstore

import "testing"

func expiry(ms int64) *int64 { return &ms }

func TestSetGetRoundTrip(t *testing.T) {
	s := New(10, 1<<20)
	s.Set("a", []byte("A"), nil)
	v, ok := s.Get("a")
	if !ok || string(v) != "A" {
		t.Fatalf("got %q,%v want A,true", v, ok)
	}
}

func TestPeekDoesNotPromote(t *testing.T) {
	s := New(2, 1<<20)
	s.Set("a", []byte("A"), nil)
	s.Set("b", []byte("B"), nil)
	// Peek "a": unlike Get, this must not move it to MRU, so "a" stays the
	// eviction candidate.
	v, ok := s.Peek("a")
	if !ok || string(v) != "A" {
		t.Fatalf("Peek a: got %q,%v want A,true", v, ok)
	}
	s.Set("c", []byte("C"), nil)

	if s.Has("a") {
		t.Fatal("expected 'a' to still be evicted as the coldest entry despite the Peek")
	}
	if !s.Has("b") || !s.Has("c") {
		t.Fatal("expected 'b' and 'c' to remain")
	}
}

func TestPeekMissAndExpired(t *testing.T) {
	s := New(10, 1<<20)
	now := int64(1000)
	s.now = func() int64 { return now }
	s.Set("a", []byte("A"), expiry(now-1))

	if _, ok := s.Peek("a"); ok {
		t.Fatal("expected expired entry to be a miss via Peek")
	}
	if _, ok := s.Peek("missing"); ok {
		t.Fatal("expected Peek on missing key to report false")
	}
}

func TestGetPromotesToMRU(t *testing.T) {
	s := New(2, 1<<20)
	s.Set("a", []byte("A"), nil)
	s.Set("b", []byte("B"), nil)
	// touch "a" so it becomes MRU, leaving "b" as the eviction candidate.
	s.Get("a")
	s.Set("c", []byte("C"), nil)

	if s.Has("b") {
		t.Fatal("expected 'b' to have been evicted as the coldest entry")
	}
	if !s.Has("a") || !s.Has("c") {
		t.Fatal("expected 'a' and 'c' to remain")
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	s := New(10, 1<<20)
	now := int64(1000)
	s.now = func() int64 { return now }
	s.Set("a", []byte("A"), expiry(now-1))

	if _, ok := s.Get("a"); ok {
		t.Fatal("expected expired entry to be a miss")
	}
	if s.Has("a") {
		t.Fatal("expired entry should have been dropped")
	}
}

func TestMaxItemsEviction(t *testing.T) {
	s := New(2, 1<<20)
	s.Set("a", []byte("A"), nil)
	s.Set("b", []byte("B"), nil)
	s.Set("c", []byte("C"), nil)

	stats := s.Stats()
	if stats.Items != 2 {
		t.Fatalf("expected 2 items, got %d", stats.Items)
	}
	if s.Has("a") {
		t.Fatal("expected oldest entry 'a' to be evicted")
	}
}

func TestEvictionPrefersExpired(t *testing.T) {
	s := New(2, 1<<20)
	now := int64(1000)
	s.now = func() int64 { return now }

	s.Set("old-cold", []byte("A"), nil)   // inserted first, would normally be LRU head
	s.Set("expired", []byte("B"), expiry(now-1))
	// Forces an eviction: "expired" should go before "old-cold" even though
	// "old-cold" is chronologically older in insertion order.
	s.Set("c", []byte("C"), nil)

	if s.Has("expired") {
		t.Fatal("expired entry should have been evicted first")
	}
	if !s.Has("old-cold") {
		t.Fatal("live cold entry should survive while an expired one exists")
	}
}

func TestDelete(t *testing.T) {
	s := New(10, 1<<20)
	s.Set("a", []byte("A"), nil)
	if !s.Delete("a") {
		t.Fatal("expected Delete to report present")
	}
	if s.Delete("a") {
		t.Fatal("expected second Delete to report absent")
	}
}

func TestSetExpiryAndTouch(t *testing.T) {
	s := New(10, 1<<20)
	now := int64(1000)
	s.now = func() int64 { return now }
	s.Set("a", []byte("A"), nil)

	if !s.SetExpiry("a", expiry(now+5000)) {
		t.Fatal("SetExpiry should succeed on live key")
	}
	if ttl := s.GetTTL("a"); ttl != 5000 {
		t.Fatalf("expected ttl 5000, got %d", ttl)
	}
	if !s.Touch("a") {
		t.Fatal("Touch should succeed on live key")
	}
	if s.Touch("missing") {
		t.Fatal("Touch should fail on missing key")
	}
}

func TestGetTTLSentinels(t *testing.T) {
	s := New(10, 1<<20)
	s.Set("a", []byte("A"), nil)
	if ttl := s.GetTTL("a"); ttl != -1 {
		t.Fatalf("expected -1 for no-expiry key, got %d", ttl)
	}
	if ttl := s.GetTTL("missing"); ttl != -2 {
		t.Fatalf("expected -2 for missing key, got %d", ttl)
	}
}

func TestPrune(t *testing.T) {
	s := New(10, 1<<20)
	now := int64(1000)
	s.now = func() int64 { return now }
	s.Set("live", []byte("A"), nil)
	s.Set("dead1", []byte("B"), expiry(now-1))
	s.Set("dead2", []byte("C"), expiry(now-1))

	if n := s.Prune(); n != 2 {
		t.Fatalf("expected 2 pruned, got %d", n)
	}
	if s.Stats().Items != 1 {
		t.Fatalf("expected 1 remaining item, got %d", s.Stats().Items)
	}
}

func TestClear(t *testing.T) {
	s := New(10, 1<<20)
	s.Set("a", []byte("A"), nil)
	s.Set("b", []byte("B"), nil)
	s.Clear()
	if s.Stats().Items != 0 || s.Stats().CurrentSize != 0 {
		t.Fatal("expected empty store after Clear")
	}
}

func TestKeysFiltersExpired(t *testing.T) {
	s := New(10, 1<<20)
	now := int64(1000)
	s.now = func() int64 { return now }
	s.Set("live", []byte("A"), nil)
	s.Set("dead", []byte("B"), expiry(now-1))

	keys := s.Keys(nil)
	if len(keys) != 1 || keys[0] != "live" {
		t.Fatalf("expected only 'live', got %v", keys)
	}
}

func TestCurrentSizeInvariant(t *testing.T) {
	s := New(10, 1<<20)
	s.Set("a", []byte("AAA"), nil)
	s.Set("b", []byte("BB"), nil)
	if got, want := s.Stats().CurrentSize, int64(5); got != want {
		t.Fatalf("current size = %d, want %d", got, want)
	}
	s.Delete("a")
	if got, want := s.Stats().CurrentSize, int64(2); got != want {
		t.Fatalf("current size after delete = %d, want %d", got, want)
	}
}
