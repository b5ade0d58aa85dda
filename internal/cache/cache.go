// Package cache holds in-process caches and their background cleanup.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the read-through contract used by the ledger.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches with expiring entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically removes expired entries from registered caches.
type Janitor struct {
	mu      sync.Mutex
	caches  map[string]Cleaner
	stop    chan struct{}
	done    chan struct{}
	started bool
}

func NewJanitor() *Janitor {
	return &Janitor{caches: make(map[string]Cleaner)}
}

// Register adds a cache under a name used in logs.
func (j *Janitor) Register(name string, c Cleaner) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.caches[name] = c
}

// Sweep cleans every registered cache once and returns the removed count.
func (j *Janitor) Sweep(ctx context.Context) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	total := 0
	for name, c := range j.caches {
		if n := c.CleanExpired(); n > 0 {
			slog.DebugContext(ctx, "Cache entries expired", "cache", name, "removed", n)
			total += n
		}
	}
	return total
}

// Start runs Sweep every interval until Stop or ctx cancellation.
func (j *Janitor) Start(ctx context.Context, interval time.Duration) {
	j.mu.Lock()
	if j.started {
		j.mu.Unlock()
		return
	}
	j.started = true
	j.stop = make(chan struct{})
	j.done = make(chan struct{})
	j.mu.Unlock()

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.Sweep(ctx)
			case <-j.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the cleanup loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return
	}
	j.started = false
	stop, done := j.stop, j.done
	j.mu.Unlock()

	close(stop)
	<-done
}
