package duracache

// stats.go implements Size, Prune, Clear and the Stats snapshot, plus the
// periodic background pruner.
//
// © 2025 duracache authors. MIT License.

import (
	"fmt"

	"go.uber.org/zap"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    int64
	Misses  int64
	HitRate float64

	MemoryItems int
	MemoryBytes int64
	DiskItems   int
	DiskBytes   int64

	// Promotions counts disk hits copied into the memory tier; Evictions
	// counts entries the disk tier evicted (for space, or because a new key
	// collided with their hash). Entries the memory tier drops to stay
	// within its own bounds are not counted.
	Promotions int64
	Evictions  int64
}

// Stats returns a snapshot of cache counters.
func (c *Cache[V]) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	memStats := c.mem.Stats()
	diskItems := c.disk.ItemCount()
	diskBytes := c.disk.Size()

	c.metrics.setMemoryStats(memStats.Items, memStats.CurrentSize)
	c.metrics.setDiskStats(diskItems, diskBytes)

	return Stats{
		Hits:        hits,
		Misses:      misses,
		HitRate:     hitRate,
		MemoryItems: memStats.Items,
		MemoryBytes: memStats.CurrentSize,
		DiskItems:   diskItems,
		DiskBytes:   diskBytes,
		Promotions:  c.promotions.Load(),
		Evictions:   c.evictions.Load(),
	}
}

// ResetStats zeroes the request-scoped counters (hits, misses, promotions,
// evictions). It does not affect the cumulative Prometheus metrics exposed
// via WithMetrics, which are meant to be reset by scraping/rate(), not by
// the application.
func (c *Cache[V]) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.promotions.Store(0)
	c.evictions.Store(0)
}

// Size returns the number of entries held in the durable tier, which is
// always a superset of the memory tier.
func (c *Cache[V]) Size() (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return c.disk.ItemCount(), nil
}

// Prune removes every expired entry from both tiers and returns how many
// disk entries were removed.
func (c *Cache[V]) Prune() (int, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	c.mem.Prune()
	return c.disk.Prune(), nil
}

// backgroundPrune is invoked periodically by backgroundTasks; it has no
// return path, so the number of disk entries removed is only logged.
func (c *Cache[V]) backgroundPrune() {
	if c.closed.Load() {
		return
	}
	c.mem.Prune()
	if n := c.disk.Prune(); n > 0 {
		c.logger.Debug("duracache: background prune removed expired entries", zap.Int("count", n))
	}
}

// Clear removes every entry from both tiers.
func (c *Cache[V]) Clear() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.bg.cancelAllTouches()
	c.mem.Clear()
	if err := c.disk.Clear(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
