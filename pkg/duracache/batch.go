package duracache

// batch.go implements the multi-key and stampede-protected operations: MGet,
// MSet and GetOrSet.
//
// © 2025 duracache authors. MIT License.

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Voskan/duracache/internal/filestore"
)

// MGet fetches several keys concurrently. The result slice has one entry per
// input key, in the same order; a miss is represented as a nil pointer.
func (c *Cache[V]) MGet(keys []string) ([]*V, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	out := make([]*V, len(keys))

	var g errgroup.Group
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			v, ok, err := c.Get(key)
			if err != nil {
				return err
			}
			if ok {
				out[i] = &v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MSetEntry is one key/value/TTL triple for MSet. TTL follows Set's
// semantics: nil applies the configured default TTL, a pointer to a
// non-positive duration stores the entry with no expiry, and a pointer to a
// positive duration overrides the default.
type MSetEntry[V any] struct {
	Key   string
	Value V
	TTL   *time.Duration
}

// MSet writes several entries. Every value is serialized and every envelope
// encoded up front; if any value fails to serialize, MSet returns
// ErrInvalidValue without having written anything. The surviving writes are
// then issued to disk concurrently, and only the ones that succeed are
// promoted into memory.
func (c *Cache[V]) MSet(entries []MSetEntry[V]) error {
	if c.closed.Load() {
		return ErrClosed
	}

	type prepared struct {
		key       string
		valBytes  []byte
		expiresAt *int64
		envBytes  []byte
	}

	preps := make([]prepared, len(entries))
	for i, e := range entries {
		valBytes, err := c.serializer.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrInvalidValue, e.Key, err)
		}
		var expiresAt *int64
		if e.TTL == nil {
			expiresAt = c.resolveTTL()
		} else {
			expiresAt = c.resolveTTL(*e.TTL)
		}
		pk := c.prefixed(e.Key)
		envBytes, err := filestore.EncodeEnvelope(pk, valBytes, expiresAt)
		if err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrIO, e.Key, err)
		}
		preps[i] = prepared{key: pk, valBytes: valBytes, expiresAt: expiresAt, envBytes: envBytes}
	}

	errs := make([]error, len(preps))
	var g errgroup.Group
	for i, p := range preps {
		i, p := i, p
		g.Go(func() error {
			errs[i] = c.disk.Set(p.key, p.valBytes, p.expiresAt, p.envBytes)
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	for i, p := range preps {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		if c.fitsMemory(len(p.valBytes)) {
			c.mem.Set(p.key, p.valBytes, p.expiresAt)
		} else {
			c.mem.Delete(p.key)
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%w: %v", ErrIO, firstErr)
	}
	return nil
}

// GetOrSet returns key's value if present, otherwise calls fn to produce it,
// stores the result (subject to the same ttl semantics as Set) and returns
// it. Concurrent GetOrSet calls for the same key coalesce into a single
// invocation of fn; every caller receives its result.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, fn func(ctx context.Context) (V, error), ttl ...time.Duration) (V, error) {
	var zero V
	if c.closed.Load() {
		return zero, ErrClosed
	}
	if v, ok, err := c.Get(key); err != nil {
		return zero, err
	} else if ok {
		return v, nil
	}

	pk := c.prefixed(key)
	res, err, _ := c.sf.Do(pk, func() (any, error) {
		if v, ok, err := c.Get(key); err != nil {
			return nil, err
		} else if ok {
			return v, nil
		}
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(key, v, ttl...); err != nil {
			return nil, err
		}
		return v, nil
	})
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if err != nil {
		return zero, err
	}
	return res.(V), nil
}
