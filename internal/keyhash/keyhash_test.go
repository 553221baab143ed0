package keyhash

import "testing"

func TestDigestDeterministic(t *testing.T) {
	a := Digest("hello")
	b := Digest("hello")
	if a != b {
		t.Fatalf("digest not deterministic: %q != %q", a, b)
	}
	if len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%q)", len(a), a)
	}
}

func TestDigestDiffers(t *testing.T) {
	if Digest("a") == Digest("b") {
		t.Fatal("distinct keys hashed to the same digest")
	}
}

func TestShardIndexRange(t *testing.T) {
	shards := 16
	for _, k := range []string{"a", "b", "c", "namespace:key", ""} {
		idx := ShardIndex(Digest(k), shards)
		if idx < 0 || idx >= shards {
			t.Fatalf("shard index %d out of range [0,%d) for key %q", idx, shards, k)
		}
	}
}

func TestShardIndexStable(t *testing.T) {
	d := Digest("stable-key")
	a := ShardIndex(d, 16)
	b := ShardIndex(d, 16)
	if a != b {
		t.Fatalf("shard index not stable: %d != %d", a, b)
	}
}

func TestShardName(t *testing.T) {
	cases := map[int]string{0: "00", 15: "0f", 16: "10", 255: "ff"}
	for idx, want := range cases {
		if got := ShardName(idx); got != want {
			t.Fatalf("ShardName(%d) = %q, want %q", idx, got, want)
		}
	}
}
