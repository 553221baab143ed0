package duracache

// background.go implements the two housekeeping routines the coordinator
// runs without blocking the request path: a debounced "touch the disk file's
// mtime" scheduler (so a hot key's LRU ordering on disk stays current without
// hitting the filesystem on every Get) and a periodic pruner.
//
// © 2025 duracache authors. MIT License.

import (
	"sync"
	"time"
)

const touchDebounceWindow = 5 * time.Second

// backgroundTasks owns the per-key debounce timers and the prune ticker. It
// has no knowledge of cache semantics beyond the callbacks it's given, so it
// stays reusable and easy to stop deterministically on Close.
type backgroundTasks struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	onFire func(key string)

	pruneTicker *time.Ticker
	pruneDone   chan struct{}
}

func newBackgroundTasks(onFire func(key string)) *backgroundTasks {
	return &backgroundTasks{
		timers: make(map[string]*time.Timer),
		onFire: onFire,
	}
}

// scheduleTouch (re)arms a debounce timer for key. Repeated calls within the
// debounce window coalesce into a single eventual touch.
func (b *backgroundTasks) scheduleTouch(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.timers[key]; ok {
		t.Stop()
	}
	b.timers[key] = time.AfterFunc(touchDebounceWindow, func() {
		b.mu.Lock()
		delete(b.timers, key)
		b.mu.Unlock()
		b.onFire(key)
	})
}

// cancelTouch stops any pending debounced touch for key, e.g. because it was
// just deleted or evicted.
func (b *backgroundTasks) cancelTouch(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.timers[key]; ok {
		t.Stop()
		delete(b.timers, key)
	}
}

// cancelAllTouches stops every pending timer, used by Clear and Close.
func (b *backgroundTasks) cancelAllTouches() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, t := range b.timers {
		t.Stop()
		delete(b.timers, key)
	}
}

// startPrune launches a ticker that invokes prune every interval. A
// non-positive interval is a no-op: the caller can still prune manually.
func (b *backgroundTasks) startPrune(interval time.Duration, prune func()) {
	if interval <= 0 {
		return
	}
	b.mu.Lock()
	if b.pruneTicker != nil {
		b.mu.Unlock()
		return
	}
	b.pruneTicker = time.NewTicker(interval)
	b.pruneDone = make(chan struct{})
	ticker := b.pruneTicker
	done := b.pruneDone
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				prune()
			case <-done:
				return
			}
		}
	}()
}

// stopPrune halts the periodic pruner, if running.
func (b *backgroundTasks) stopPrune() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pruneTicker != nil {
		b.pruneTicker.Stop()
		close(b.pruneDone)
		b.pruneTicker = nil
	}
}

// close stops every background activity so the process can exit cleanly.
func (b *backgroundTasks) close() {
	b.cancelAllTouches()
	b.stopPrune()
}
