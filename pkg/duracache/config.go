package duracache

// config.go defines the internal configuration object and the set of
// functional options passed to New[V]. A generic Option keeps callbacks
// type-safe with respect to the concrete value type V chosen by the caller.
//
// © 2025 duracache authors. MIT License.

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Voskan/duracache/internal/codec"
)

// Option is the functional option passed to New.
type Option[V any] func(*config[V])

// config bundles every knob that influences cache behaviour. All fields are
// immutable once the Cache is constructed.
type config[V any] struct {
	dir           string
	maxMemItems   int
	maxMemSize    int64
	maxDiskSize   int64
	shards        int
	defaultTTL    time.Duration
	namespace     string
	gzip          bool
	pruneInterval time.Duration

	serializer codec.Serializer[V]
	logger     *zap.Logger
	registry   *prometheus.Registry
}

func defaultConfig[V any]() *config[V] {
	return &config[V]{
		dir:           ".duracache",
		maxMemItems:   1000,
		maxMemSize:    50 << 20,  // 50 MiB
		maxDiskSize:   500 << 20, // 500 MiB
		shards:        16,
		serializer:    codec.JSONSerializer[V]{},
		logger:        zap.NewNop(),
	}
}

// WithDir sets the root directory of the durable tier. Required in practice;
// defaults to "./.duracache" if never set.
func WithDir[V any](dir string) Option[V] {
	return func(c *config[V]) { c.dir = dir }
}

// WithMaxMemoryItems bounds the in-memory tier by entry count.
func WithMaxMemoryItems[V any](n int) Option[V] {
	return func(c *config[V]) { c.maxMemItems = n }
}

// WithMaxMemorySize bounds the in-memory tier by total serialized-value bytes.
func WithMaxMemorySize[V any](bytes int64) Option[V] {
	return func(c *config[V]) { c.maxMemSize = bytes }
}

// WithMaxDiskSize bounds the durable tier by total on-disk bytes.
func WithMaxDiskSize[V any](bytes int64) Option[V] {
	return func(c *config[V]) { c.maxDiskSize = bytes }
}

// WithShards sets the number of shard directories under the durable tier's
// root. Changing this between runs over the same directory is not supported:
// existing files are addressed by hash, not by current shard count.
func WithShards[V any](n int) Option[V] {
	return func(c *config[V]) { c.shards = n }
}

// WithDefaultTTL applies d to every Set call that does not pass its own TTL.
// Leaving this unset means entries never expire unless a TTL is given
// explicitly at Set time.
func WithDefaultTTL[V any](d time.Duration) Option[V] {
	return func(c *config[V]) { c.defaultTTL = d }
}

// WithNamespace prefixes every key this Cache touches with ns+":", letting
// multiple coordinators share one directory without colliding.
func WithNamespace[V any](ns string) Option[V] {
	return func(c *config[V]) { c.namespace = ns }
}

// WithGzip enables gzip compression of on-disk envelopes. Toggling this
// between runs is safe: PayloadCodec auto-detects compressed files by their
// magic bytes, so old and new files coexist.
func WithGzip[V any](enabled bool) Option[V] {
	return func(c *config[V]) { c.gzip = enabled }
}

// WithPruneInterval sets the period of the background pruner. A value of 0
// disables periodic pruning; callers may still invoke Prune manually.
func WithPruneInterval[V any](d time.Duration) Option[V] {
	return func(c *config[V]) { c.pruneInterval = d }
}

// WithSerializer overrides the default JSON (de)serialization of values.
func WithSerializer[V any](s codec.Serializer[V]) Option[V] {
	return func(c *config[V]) {
		if s != nil {
			c.serializer = s
		}
	}
}

// WithLogger plugs an external zap.Logger. The cache never logs on the hot
// path; only files skipped while loading the disk index, background prune
// results and eviction-callback panics are emitted.
func WithLogger[V any](l *zap.Logger) Option[V] {
	return func(c *config[V]) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics collection. Passing nil disables
// metrics (the default).
func WithMetrics[V any](reg *prometheus.Registry) Option[V] {
	return func(c *config[V]) { c.registry = reg }
}

var (
	errInvalidShards      = errors.New("duracache: shards must be > 0")
	errInvalidMaxMemItems = errors.New("duracache: max memory items must be >= 0")
	errInvalidMaxDiskSize = errors.New("duracache: max disk size must be > 0")
)

// applyOptions copies user-supplied options into cfg and validates invariants.
func applyOptions[V any](cfg *config[V], opts []Option[V]) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.shards <= 0 {
		return errInvalidShards
	}
	if cfg.maxMemItems < 0 {
		return errInvalidMaxMemItems
	}
	if cfg.maxDiskSize <= 0 {
		return errInvalidMaxDiskSize
	}
	if cfg.dir == "" {
		cfg.dir = ".duracache"
	}
	return nil
}
