package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Directory is an in-process implementation of app.Directory with the same
// TTL semantics as the Redis one. It backs single-process runs and tests.
type Directory struct {
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewDirectory() *Directory {
	return NewDirectoryWithClock(time.Now)
}

// NewDirectoryWithClock allows deterministic TTL expiry in tests.
func NewDirectoryWithClock(clock func() time.Time) *Directory {
	return &Directory{clock: clock, entries: make(map[string]entry)}
}

func (d *Directory) Put(_ context.Context, key, value string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = d.clock().Add(ttl)
	}
	d.entries[key] = e
	return nil
}

func (d *Directory) Get(_ context.Context, key string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(d.clock()) {
		delete(d.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (d *Directory) Del(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, key)
	return nil
}
