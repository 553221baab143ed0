// Package duracache implements a two-tier embedded key/value cache: a
// bounded in-memory LRU sitting in front of a durable, sharded on-disk
// store. Entries whose serialized value fits the memory size bound may also
// live in memory — memory is always a subset of what's on disk — so a
// process restart never loses data, only the warm set.
//
// © 2025 duracache authors. MIT License.
package duracache

import (
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/duracache/internal/codec"
	"github.com/Voskan/duracache/internal/filestore"
	"github.com/Voskan/duracache/internal/memstore"

	"golang.org/x/sync/singleflight"
)

// Cache is a generic two-tier cache over values of type V. The zero value is
// not usable; construct one with New.
type Cache[V any] struct {
	mem  *memstore.Store
	disk *filestore.FileStore

	serializer codec.Serializer[V]
	namespace  string
	defaultTTL time.Duration
	maxMemSize int64

	sf      singleflight.Group
	bg      *backgroundTasks
	metrics metricsSink
	logger  *zap.Logger

	closed     atomic.Bool
	hits       atomic.Int64
	misses     atomic.Int64
	promotions atomic.Int64
	evictions  atomic.Int64
}

// New constructs a Cache rooted at the directory given by WithDir (default
// "./.duracache"), creating it lazily on first use.
func New[V any](opts ...Option[V]) (*Cache[V], error) {
	cfg := defaultConfig[V]()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	c := &Cache[V]{
		serializer: cfg.serializer,
		namespace:  cfg.namespace,
		defaultTTL: cfg.defaultTTL,
		maxMemSize: cfg.maxMemSize,
		logger:     cfg.logger,
		metrics:    newMetricsSink(cfg.registry),
	}
	c.mem = memstore.New(cfg.maxMemItems, cfg.maxMemSize)
	c.disk = filestore.New(filestore.Options{
		Dir:     cfg.dir,
		Shards:  cfg.shards,
		MaxSize: cfg.maxDiskSize,
		Codec:   codec.PayloadCodec{Gzip: cfg.gzip},
		OnEvict: c.handleEvict,
		Logger:  cfg.logger,
	})
	c.bg = newBackgroundTasks(c.onTouchFire)
	c.bg.startPrune(cfg.pruneInterval, c.backgroundPrune)

	return c, nil
}

// prefixed applies the configured namespace to a caller-supplied key.
func (c *Cache[V]) prefixed(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

// stripNamespace reverses prefixed, reporting false if stored does not
// belong to this Cache's namespace (relevant only when several namespaced
// Caches share one directory).
func (c *Cache[V]) stripNamespace(stored string) (string, bool) {
	if c.namespace == "" {
		return stored, true
	}
	prefix := c.namespace + ":"
	if !strings.HasPrefix(stored, prefix) {
		return "", false
	}
	return stored[len(prefix):], true
}

// fitsMemory reports whether a value of the given serialized size is
// eligible for the memory tier at all; oversized values live on disk only.
func (c *Cache[V]) fitsMemory(size int) bool {
	return int64(size) <= c.maxMemSize
}

// handleEvict is FileStore's eviction upcall: when disk drops a key for
// space or TTL reasons, memory must drop it too so the subset invariant
// holds.
func (c *Cache[V]) handleEvict(key string) {
	c.mem.Delete(key)
	c.bg.cancelTouch(key)
	c.evictions.Add(1)
	c.metrics.incEviction("disk")
}

// onTouchFire is the debounced-touch timer's callback; it best-effort
// refreshes the on-disk mtime used for disk-tier LRU ordering.
func (c *Cache[V]) onTouchFire(key string) {
	if c.closed.Load() {
		return
	}
	c.disk.Touch(key)
}

// Close stops all background activity. It is idempotent and safe to call
// more than once; it does not delete any data.
func (c *Cache[V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.bg.close()
	return nil
}
