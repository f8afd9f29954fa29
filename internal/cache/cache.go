// Package cache provides the TTL-bound key-value store backing validation
// task leases.
package cache

import (
	"context"
	"time"
)

// Cache is a string key-value store with per-key TTLs. It is the only
// coordination primitive the admission controller has: not a lock, just a
// read-check-write convention over TTL-bound entries.
type Cache interface {
	// Get returns the value for key, or "" when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// TTL returns the remaining lifetime of key, or 0 when the key is
	// absent or expired.
	TTL(ctx context.Context, key string) (time.Duration, error)
}
