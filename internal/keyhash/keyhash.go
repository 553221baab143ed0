// Package keyhash computes the deterministic digest used to address cache
// entries on disk and to route them to a shard.
//
// The hash MUST be stable across process restarts: the FileStore rebuilds
// its in-memory index from whatever is already on disk, and that rebuilt
// index has to agree with the digest a fresh process would compute for the
// same key. A keyed/seeded hash (e.g. hash/maphash with a random seed) would
// violate that; crypto/sha256 does not.
//
// © 2025 duracache authors. MIT License.
package keyhash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest is the 32 hex character (128 bit) truncated SHA-256 of a key.
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}

// ShardIndex maps a digest (as produced by Digest) to a shard in [0, shards).
// It interprets the first 32 bits of the digest as a big-endian unsigned
// integer and reduces it modulo shards.
func ShardIndex(digest string, shards int) int {
	if shards <= 0 || len(digest) < 8 {
		return 0
	}
	raw, err := hex.DecodeString(digest[:8])
	if err != nil || len(raw) < 4 {
		// Malformed digest should never happen in practice; fall back to 0
		// rather than panicking on a corrupted index entry.
		return 0
	}
	n := binary.BigEndian.Uint32(raw)
	return int(n % uint32(shards))
}

// ShardName renders a shard index as the two-hex-character directory name
// used on disk ("00".."ff").
func ShardName(idx int) string {
	const hexDigits = "0123456789abcdef"
	hi := (idx >> 4) & 0xf
	lo := idx & 0xf
	return string([]byte{hexDigits[hi], hexDigits[lo]})
}
