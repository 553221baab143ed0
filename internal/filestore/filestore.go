// Package filestore implements the cache's durable tier: a sharded
// directory of JSON envelope files with an in-memory index, atomic
// temp+rename writes, and space/TTL-driven eviction that notifies the
// coordinator so the memory tier can stay a subset of disk.
//
// © 2025 duracache authors. MIT License.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Voskan/duracache/internal/codec"
	"github.com/Voskan/duracache/internal/keyhash"
	"github.com/Voskan/duracache/internal/pattern"

	"go.uber.org/zap"
)

// Entry is the fully decoded on-disk record returned to callers.
type Entry struct {
	Key       string
	Value     []byte
	ExpiresAt *int64 // epoch ms, nil = no expiry
}

type indexEntry struct {
	hash           string
	expiresAt      *int64
	lastAccessedAt int64
	size           int64
}

// Options configures a FileStore. Codec and OnEvict may be left zero; Logger
// defaults to a no-op logger.
type Options struct {
	Dir     string
	Shards  int
	MaxSize int64
	Codec   codec.PayloadCodec
	OnEvict func(key string)
	Logger  *zap.Logger
}

// FileStore is the sharded, durable key/value engine: each entry lives as a
// single JSON envelope file under a shard directory chosen by hashing its
// key, with an in-memory index kept consistent via atomic writes and
// space/TTL-driven eviction.
type FileStore struct {
	dir     string
	shards  int
	maxSize int64
	codec   codec.PayloadCodec
	onEvict func(key string)
	logger  *zap.Logger

	hashFn func(string) string

	mu          sync.Mutex
	index       map[string]indexEntry
	hashToKey   map[string]string
	totalSize   int64
	initialized bool
}

// New constructs a FileStore. Directory creation and index rebuilding are
// deferred to the first operation (lazy init).
func New(opts Options) *FileStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	shards := opts.Shards
	if shards <= 0 {
		shards = 16
	}
	return &FileStore{
		dir:       opts.Dir,
		shards:    shards,
		maxSize:   opts.MaxSize,
		codec:     opts.Codec,
		onEvict:   opts.OnEvict,
		logger:    logger,
		hashFn:    keyhash.Digest,
		index:     make(map[string]indexEntry),
		hashToKey: make(map[string]string),
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func isExpired(expiresAt *int64, now int64) bool {
	return expiresAt != nil && *expiresAt <= now
}

// ensureInit creates the root and shard directories and rebuilds the index
// from whatever is already on disk. Safe to call repeatedly; only runs the
// heavy path once successful.
func (fs *FileStore) ensureInit() error {
	fs.mu.Lock()
	if fs.initialized {
		fs.mu.Unlock()
		return nil
	}
	fs.mu.Unlock()

	if err := os.MkdirAll(fs.dir, 0o750); err != nil {
		return fmt.Errorf("filestore: create root dir: %w", err)
	}
	for i := 0; i < fs.shards; i++ {
		shardPath := filepath.Join(fs.dir, keyhash.ShardName(i))
		if err := os.MkdirAll(shardPath, 0o750); err != nil {
			return fmt.Errorf("filestore: create shard dir: %w", err)
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.initialized {
		return nil
	}

	now := nowMillis()
	for i := 0; i < fs.shards; i++ {
		shardPath := filepath.Join(fs.dir, keyhash.ShardName(i))
		entries, err := os.ReadDir(shardPath)
		if err != nil {
			continue
		}
		for _, de := range entries {
			if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
				continue
			}
			filePath := filepath.Join(shardPath, de.Name())
			info, err := de.Info()
			if err != nil {
				continue
			}
			raw, err := os.ReadFile(filePath)
			if err != nil {
				fs.logger.Debug("filestore: skip unreadable file", zap.String("path", filePath), zap.Error(err))
				continue
			}
			plain, err := fs.codec.Decode(raw)
			if err != nil {
				fs.logger.Debug("filestore: skip undecodable file", zap.String("path", filePath), zap.Error(err))
				continue
			}
			env, err := unmarshalEnvelope(plain)
			if err != nil {
				fs.logger.Debug("filestore: skip malformed envelope", zap.String("path", filePath), zap.Error(err))
				continue
			}
			if isExpired(env.ExpiresAt, now) {
				_ = os.Remove(filePath)
				continue
			}
			hash := strings.TrimSuffix(de.Name(), ".json")
			fs.index[env.Key] = indexEntry{
				hash:           hash,
				expiresAt:      env.ExpiresAt,
				lastAccessedAt: info.ModTime().UnixMilli(),
				size:           info.Size(),
			}
			fs.hashToKey[hash] = env.Key
			fs.totalSize += info.Size()
		}
	}
	fs.initialized = true
	return nil
}

func (fs *FileStore) shardPathFor(hash string) string {
	idx := keyhash.ShardIndex(hash, fs.shards)
	return filepath.Join(fs.dir, keyhash.ShardName(idx), hash+".json")
}

// Get returns the decoded entry for key, or (zero, false, nil) if missing or
// expired. File read/decode failures drop the entry from the index and are
// reported as a miss, never an error.
func (fs *FileStore) Get(key string) (Entry, bool, error) {
	if err := fs.ensureInit(); err != nil {
		return Entry{}, false, err
	}
	return fs.get(key, true)
}

// Peek is Get without updating the last-accessed bookkeeping used for LRU
// eviction.
func (fs *FileStore) Peek(key string) (Entry, bool, error) {
	if err := fs.ensureInit(); err != nil {
		return Entry{}, false, err
	}
	return fs.get(key, false)
}

func (fs *FileStore) get(key string, touch bool) (Entry, bool, error) {
	fs.mu.Lock()
	idx, ok := fs.index[key]
	if !ok {
		fs.mu.Unlock()
		return Entry{}, false, nil
	}
	now := nowMillis()
	if isExpired(idx.expiresAt, now) {
		fs.removeIndexLocked(key, idx)
		fs.mu.Unlock()
		return Entry{}, false, nil
	}
	path := fs.shardPathFor(idx.hash)
	fs.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		fs.dropLostEntry(key)
		return Entry{}, false, nil
	}
	plain, err := fs.codec.Decode(raw)
	if err != nil {
		fs.dropLostEntry(key)
		return Entry{}, false, nil
	}
	env, err := unmarshalEnvelope(plain)
	if err != nil {
		fs.dropLostEntry(key)
		return Entry{}, false, nil
	}
	if env.Key != key {
		// Stale hash-to-key mapping (e.g. left over from a collision that
		// was never cleaned up); treat as absent.
		fs.dropLostEntry(key)
		return Entry{}, false, nil
	}

	if touch {
		fs.mu.Lock()
		if cur, ok := fs.index[key]; ok {
			cur.lastAccessedAt = nowMillis()
			fs.index[key] = cur
		}
		fs.mu.Unlock()
	}

	return Entry{Key: env.Key, Value: env.Value, ExpiresAt: env.ExpiresAt}, true, nil
}

// dropLostEntry removes key from the index after an unrecoverable read or
// decode failure, restoring the total_size invariant.
func (fs *FileStore) dropLostEntry(key string) {
	fs.mu.Lock()
	if idx, ok := fs.index[key]; ok {
		fs.removeIndexLocked(key, idx)
	}
	fs.mu.Unlock()
}

// removeIndexLocked unlinks key from index/hashToKey and adjusts totalSize.
// Caller must hold fs.mu.
func (fs *FileStore) removeIndexLocked(key string, idx indexEntry) {
	delete(fs.index, key)
	if fs.hashToKey[idx.hash] == key {
		delete(fs.hashToKey, idx.hash)
	}
	fs.totalSize -= idx.size
}

// Set stores value under key with the given expiry. If preEncodedEnvelope is
// non-nil, it is used verbatim instead of re-marshaling {key, value,
// expires_at}, avoiding double work when the coordinator already produced
// the envelope bytes.
func (fs *FileStore) Set(key string, value []byte, expiresAt *int64, preEncodedEnvelope []byte) error {
	if err := fs.ensureInit(); err != nil {
		return err
	}

	envBytes := preEncodedEnvelope
	if envBytes == nil {
		var err error
		envBytes, err = marshalEnvelope(key, value, expiresAt)
		if err != nil {
			return fmt.Errorf("filestore: marshal envelope: %w", err)
		}
	}
	diskBytes, err := fs.codec.Encode(envBytes)
	if err != nil {
		return fmt.Errorf("filestore: encode: %w", err)
	}

	hash := fs.hashFn(key)
	path := fs.shardPathFor(hash)

	var evicted []string

	fs.mu.Lock()
	if old, ok := fs.index[key]; ok {
		fs.removeIndexLocked(key, old)
	}
	if collidingKey, ok := fs.hashToKey[hash]; ok && collidingKey != key {
		if cidx, ok := fs.index[collidingKey]; ok {
			fs.removeIndexLocked(collidingKey, cidx)
			_ = os.Remove(fs.shardPathFor(cidx.hash))
			evicted = append(evicted, collidingKey)
		}
	}
	evicted = append(evicted, fs.ensureSpaceLocked(int64(len(diskBytes)))...)
	fs.mu.Unlock()

	fs.notifyEvicted(evicted)

	if err := fs.atomicWrite(path, diskBytes); err != nil {
		return fmt.Errorf("filestore: write %s: %w", path, err)
	}

	fs.mu.Lock()
	now := nowMillis()
	fs.index[key] = indexEntry{hash: hash, expiresAt: expiresAt, lastAccessedAt: now, size: int64(len(diskBytes))}
	fs.hashToKey[hash] = key
	fs.totalSize += int64(len(diskBytes))
	fs.mu.Unlock()

	return nil
}

// ensureSpaceLocked evicts entries (expired first, then coldest by
// last-accessed time) until there is room for `needed` additional bytes.
// Caller must hold fs.mu. Returns the keys evicted, for notification after
// unlock.
func (fs *FileStore) ensureSpaceLocked(needed int64) []string {
	if fs.totalSize+needed <= fs.maxSize {
		return nil
	}
	target := fs.totalSize + needed - fs.maxSize
	var freed int64
	var evicted []string

	now := nowMillis()
	for key, idx := range fs.index {
		if freed >= target {
			break
		}
		if isExpired(idx.expiresAt, now) {
			freed += idx.size
			fs.removeIndexLocked(key, idx)
			_ = os.Remove(fs.shardPathFor(idx.hash))
			evicted = append(evicted, key)
		}
	}

	for freed < target && len(fs.index) > 0 {
		var coldestKey string
		var coldest indexEntry
		first := true
		for key, idx := range fs.index {
			if first || idx.lastAccessedAt < coldest.lastAccessedAt {
				coldestKey, coldest, first = key, idx, false
			}
		}
		freed += coldest.size
		fs.removeIndexLocked(coldestKey, coldest)
		_ = os.Remove(fs.shardPathFor(coldest.hash))
		evicted = append(evicted, coldestKey)
	}

	return evicted
}

// notifyEvicted invokes the eviction upcall for each key, recovering from
// any panic so a misbehaving callback can never fail the triggering write.
func (fs *FileStore) notifyEvicted(keys []string) {
	if fs.onEvict == nil {
		return
	}
	for _, k := range keys {
		fs.callEvictCb(k)
	}
}

func (fs *FileStore) callEvictCb(key string) {
	defer func() {
		if r := recover(); r != nil {
			fs.logger.Warn("filestore: eviction callback panicked", zap.Any("recover", r), zap.String("key", key))
		}
	}()
	fs.onEvict(key)
}

// atomicWrite writes data to a uniquely named temp file under the store's
// root and renames it into place, so readers never observe a partial file.
func (fs *FileStore) atomicWrite(path string, data []byte) error {
	f, err := os.CreateTemp(fs.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpPath)
		if werr != nil {
			return werr
		}
		return cerr
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Delete removes key, reporting whether it was present in the index. Unlink
// failures are ignored (best-effort cleanup of an already-logically-gone
// entry).
func (fs *FileStore) Delete(key string) bool {
	if err := fs.ensureInit(); err != nil {
		return false
	}
	fs.mu.Lock()
	idx, ok := fs.index[key]
	if !ok {
		fs.mu.Unlock()
		return false
	}
	fs.removeIndexLocked(key, idx)
	fs.mu.Unlock()

	_ = os.Remove(fs.shardPathFor(idx.hash))
	return true
}

// Has reports whether key is present and not expired, lazily dropping it if
// expired.
func (fs *FileStore) Has(key string) bool {
	if err := fs.ensureInit(); err != nil {
		return false
	}
	fs.mu.Lock()
	idx, ok := fs.index[key]
	if !ok {
		fs.mu.Unlock()
		return false
	}
	if isExpired(idx.expiresAt, nowMillis()) {
		fs.removeIndexLocked(key, idx)
		fs.mu.Unlock()
		_ = os.Remove(fs.shardPathFor(idx.hash))
		return false
	}
	fs.mu.Unlock()
	return true
}

// Keys returns every live key whose name matches m, deleting (concurrently)
// any expired entries encountered along the way.
func (fs *FileStore) Keys(m *pattern.Matcher) []string {
	if err := fs.ensureInit(); err != nil {
		return nil
	}

	fs.mu.Lock()
	now := nowMillis()
	var live []string
	var expiredKeys []string
	for key, idx := range fs.index {
		if isExpired(idx.expiresAt, now) {
			expiredKeys = append(expiredKeys, key)
			continue
		}
		if m == nil || m.Match(key) {
			live = append(live, key)
		}
	}
	fs.mu.Unlock()

	if len(expiredKeys) > 0 {
		fs.deleteManyConcurrently(expiredKeys)
	}

	sort.Strings(live)
	return live
}

// deleteManyConcurrently removes each of keys from the store in parallel.
// Unlink errors are swallowed: the index entry is already gone, so a file
// left behind is not seen again until the index is next rebuilt from disk,
// which removes expired files as it loads.
func (fs *FileStore) deleteManyConcurrently(keys []string) {
	var g errgroup.Group
	for _, k := range keys {
		k := k
		g.Go(func() error {
			fs.Delete(k)
			return nil
		})
	}
	_ = g.Wait()
}

// SetExpiry updates the expiry of an existing, non-expired entry, re-writing
// the envelope since its encoded size may change.
func (fs *FileStore) SetExpiry(key string, newExpiry *int64) (bool, error) {
	if err := fs.ensureInit(); err != nil {
		return false, err
	}

	fs.mu.Lock()
	idx, ok := fs.index[key]
	if !ok {
		fs.mu.Unlock()
		return false, nil
	}
	if isExpired(idx.expiresAt, nowMillis()) {
		fs.removeIndexLocked(key, idx)
		fs.mu.Unlock()
		return false, nil
	}
	path := fs.shardPathFor(idx.hash)
	fs.mu.Unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		fs.dropLostEntry(key)
		return false, nil
	}
	plain, err := fs.codec.Decode(raw)
	if err != nil {
		fs.dropLostEntry(key)
		return false, nil
	}
	env, err := unmarshalEnvelope(plain)
	if err != nil {
		fs.dropLostEntry(key)
		return false, nil
	}

	env.ExpiresAt = newExpiry
	envBytes, err := marshalEnvelope(env.Key, env.Value, env.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("filestore: marshal envelope: %w", err)
	}
	diskBytes, err := fs.codec.Encode(envBytes)
	if err != nil {
		return false, fmt.Errorf("filestore: encode: %w", err)
	}
	if err := fs.atomicWrite(path, diskBytes); err != nil {
		return false, fmt.Errorf("filestore: write %s: %w", path, err)
	}

	fs.mu.Lock()
	if cur, ok := fs.index[key]; ok {
		fs.totalSize += int64(len(diskBytes)) - cur.size
		cur.expiresAt = newExpiry
		cur.size = int64(len(diskBytes))
		fs.index[key] = cur
	}
	fs.mu.Unlock()

	return true, nil
}

// Touch updates the in-memory last-accessed bookkeeping and best-effort sets
// the file's mtime; mtime failures are ignored.
func (fs *FileStore) Touch(key string) bool {
	if err := fs.ensureInit(); err != nil {
		return false
	}
	fs.mu.Lock()
	idx, ok := fs.index[key]
	if !ok {
		fs.mu.Unlock()
		return false
	}
	if isExpired(idx.expiresAt, nowMillis()) {
		fs.removeIndexLocked(key, idx)
		fs.mu.Unlock()
		return false
	}
	now := nowMillis()
	idx.lastAccessedAt = now
	fs.index[key] = idx
	path := fs.shardPathFor(idx.hash)
	fs.mu.Unlock()

	t := time.UnixMilli(now)
	_ = os.Chtimes(path, t, t)
	return true
}

// GetTTL returns remaining milliseconds, -1 (no expiry) or -2 (missing),
// resolved from the index only.
func (fs *FileStore) GetTTL(key string) int64 {
	if err := fs.ensureInit(); err != nil {
		return -2
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, ok := fs.index[key]
	if !ok {
		return -2
	}
	now := nowMillis()
	if isExpired(idx.expiresAt, now) {
		fs.removeIndexLocked(key, idx)
		return -2
	}
	if idx.expiresAt == nil {
		return -1
	}
	return *idx.expiresAt - now
}

// Prune deletes every expired entry and returns how many were removed.
func (fs *FileStore) Prune() int {
	if err := fs.ensureInit(); err != nil {
		return 0
	}
	fs.mu.Lock()
	now := nowMillis()
	var expiredKeys []string
	for key, idx := range fs.index {
		if isExpired(idx.expiresAt, now) {
			expiredKeys = append(expiredKeys, key)
		}
	}
	fs.mu.Unlock()

	fs.deleteManyConcurrently(expiredKeys)
	return len(expiredKeys)
}

// Clear removes every entry from disk and resets the index.
func (fs *FileStore) Clear() error {
	if err := fs.ensureInit(); err != nil {
		return err
	}

	var g errgroup.Group
	for i := 0; i < fs.shards; i++ {
		shardPath := filepath.Join(fs.dir, keyhash.ShardName(i))
		g.Go(func() error {
			entries, err := os.ReadDir(shardPath)
			if err != nil {
				return nil
			}
			for _, de := range entries {
				_ = os.Remove(filepath.Join(shardPath, de.Name()))
			}
			return nil
		})
	}
	err := g.Wait()

	fs.mu.Lock()
	fs.index = make(map[string]indexEntry)
	fs.hashToKey = make(map[string]string)
	fs.totalSize = 0
	fs.mu.Unlock()

	return err
}

// Size returns the total bytes occupied by on-disk entries.
func (fs *FileStore) Size() int64 {
	_ = fs.ensureInit()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.totalSize
}

// ItemCount returns the number of entries currently indexed.
func (fs *FileStore) ItemCount() int {
	_ = fs.ensureInit()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.index)
}

// SetMaxSizeForTest overrides the space-eviction ceiling. Exported only so
// that pkg/duracache's tests can deterministically provoke disk eviction
// without depending on exact envelope byte sizes.
func (fs *FileStore) SetMaxSizeForTest(max int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.maxSize = max
}
