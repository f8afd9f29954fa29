package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache for single-node deployments and tests.
// Expired entries are dropped lazily on access.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryWithClock creates an in-memory cache with an injectable clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	c := NewMemory()
	c.now = now
	return c
}

// Get implements Cache.
func (c *Memory) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", nil
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return "", nil
	}
	return entry.value, nil
}

// Set implements Cache.
func (c *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// Delete implements Cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// TTL implements Cache.
func (c *Memory) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return 0, nil
	}
	remaining := entry.expiresAt.Sub(c.now())
	if remaining <= 0 {
		delete(c.entries, key)
		return 0, nil
	}
	return remaining, nil
}
