package duracache

// ops.go implements the single-key operations: Get, Set, Del, Exists, Keys,
// Expire, Persist, TTL, Touch. Reads (Get, Exists, TTL) consult the memory
// tier first and fall back to disk, and Get promotes a disk hit into memory
// so it serves faster next time. Set, Expire and Persist write to disk
// first and update memory only after the disk write succeeds.
//
// © 2025 duracache authors. MIT License.

import (
	"fmt"
	"sort"
	"time"

	"github.com/Voskan/duracache/internal/filestore"
	"github.com/Voskan/duracache/internal/pattern"
)

func nowMillis() int64 { return time.Now().UnixMilli() }

// resolveTTL turns an optional TTL argument into an absolute epoch-ms
// expiry, or nil for "never expires". No argument applies the configured
// default TTL (if any); an explicit non-positive duration opts out of the
// default entirely, per Set's documented semantics.
func (c *Cache[V]) resolveTTL(ttl ...time.Duration) *int64 {
	var d time.Duration
	if len(ttl) == 0 {
		d = c.defaultTTL
	} else {
		d = ttl[0]
	}
	if d <= 0 {
		return nil
	}
	at := nowMillis() + d.Milliseconds()
	return &at
}

func msToSeconds(ms int64) float64 {
	if ms < 0 {
		return float64(ms)
	}
	return float64(ms) / 1000.0
}

// Get retrieves key's value. The second return value is false on a miss;
// the error return is reserved for I/O failures and corrupt values, never
// for an ordinary miss.
func (c *Cache[V]) Get(key string) (V, bool, error) {
	var zero V
	if c.closed.Load() {
		return zero, false, ErrClosed
	}
	pk := c.prefixed(key)

	if raw, ok := c.mem.Get(pk); ok {
		c.hits.Add(1)
		c.metrics.incHit("memory")
		c.bg.scheduleTouch(pk)
		v, err := c.serializer.Unmarshal(raw)
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	}

	entry, ok, err := c.disk.Get(pk)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		c.misses.Add(1)
		c.metrics.incMiss()
		return zero, false, nil
	}

	c.hits.Add(1)
	c.metrics.incHit("disk")
	if c.fitsMemory(len(entry.Value)) {
		c.promotions.Add(1)
		c.metrics.incPromotion()
		c.mem.Set(pk, entry.Value, entry.ExpiresAt)
	}

	v, err := c.serializer.Unmarshal(entry.Value)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set stores value under key. ttl is variadic sugar for an optional
// per-call expiry: omit it to use the configured default TTL (if any), pass
// 0 to store the entry with no expiry regardless of the default, or pass a
// positive duration to override it.
func (c *Cache[V]) Set(key string, value V, ttl ...time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	pk := c.prefixed(key)
	expiresAt := c.resolveTTL(ttl...)

	valBytes, err := c.serializer.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	envBytes, err := filestore.EncodeEnvelope(pk, valBytes, expiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if err := c.disk.Set(pk, valBytes, expiresAt, envBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if c.fitsMemory(len(valBytes)) {
		c.mem.Set(pk, valBytes, expiresAt)
	} else {
		c.mem.Delete(pk)
	}
	return nil
}

// Del removes key from both tiers, reporting whether it was present in
// either.
func (c *Cache[V]) Del(key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	pk := c.prefixed(key)
	c.bg.cancelTouch(pk)
	memHad := c.mem.Delete(pk)
	diskHad := c.disk.Delete(pk)
	return memHad || diskHad, nil
}

// Exists reports whether key is present and unexpired in either tier.
func (c *Cache[V]) Exists(key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	pk := c.prefixed(key)
	if c.mem.Has(pk) {
		return true, nil
	}
	return c.disk.Has(pk), nil
}

// Keys returns every live key (namespace stripped) matching pattern, which
// accepts "*" as the only wildcard. An empty pattern behaves like "*".
func (c *Cache[V]) Keys(patternStr string) ([]string, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if patternStr == "" {
		patternStr = "*"
	}
	m, err := pattern.Compile(patternStr)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []string
	collect := func(stored []string) {
		for _, k := range stored {
			logical, ok := c.stripNamespace(k)
			if !ok {
				continue
			}
			if !m.Match(logical) {
				continue
			}
			if _, dup := seen[logical]; dup {
				continue
			}
			seen[logical] = struct{}{}
			out = append(out, logical)
		}
	}
	collect(c.mem.Keys(nil))
	collect(c.disk.Keys(nil))

	sort.Strings(out)
	return out, nil
}

// Expire sets key's remaining TTL to seconds, reporting whether key was
// present. A non-positive seconds value expires the entry immediately.
func (c *Cache[V]) Expire(key string, seconds float64) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	pk := c.prefixed(key)

	var expiresAt *int64
	if seconds > 0 {
		at := nowMillis() + int64(seconds*1000)
		expiresAt = &at
	} else {
		now := nowMillis()
		expiresAt = &now
	}

	ok, err := c.disk.SetExpiry(pk, expiresAt)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if !ok {
		return false, nil
	}
	c.mem.SetExpiry(pk, expiresAt)
	return true, nil
}

// Persist removes key's expiry, reporting whether key was present.
func (c *Cache[V]) Persist(key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	pk := c.prefixed(key)
	ok, err := c.disk.SetExpiry(pk, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrIO, err)
	}
	if !ok {
		return false, nil
	}
	c.mem.SetExpiry(pk, nil)
	return true, nil
}

// TTL reports key's remaining time to live in seconds, -1 if it never
// expires, or -2 if it is missing or already expired. Memory is consulted
// first since it's authoritative whenever it holds the key.
func (c *Cache[V]) TTL(key string) (float64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	pk := c.prefixed(key)
	if ms := c.mem.GetTTL(pk); ms != -2 {
		return msToSeconds(ms), nil
	}
	return msToSeconds(c.disk.GetTTL(pk)), nil
}

// Touch refreshes key's recency in both tiers without reading its value,
// reporting whether it was present in either.
func (c *Cache[V]) Touch(key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrClosed
	}
	pk := c.prefixed(key)
	c.bg.cancelTouch(pk)
	diskOk := c.disk.Touch(pk)
	memOk := c.mem.Touch(pk)
	return diskOk || memOk, nil
}
