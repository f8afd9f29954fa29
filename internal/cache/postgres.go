package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Cache backed by a single table, for deployments where
// multiple service processes must observe the same leases.
//
// Expected schema:
//
//	CREATE TABLE cache_entries (
//	    key        TEXT PRIMARY KEY,
//	    value      TEXT NOT NULL,
//	    expires_at TIMESTAMPTZ NOT NULL
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Get implements Cache.
func (c *Postgres) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := c.pool.QueryRow(ctx,
		`SELECT value FROM cache_entries WHERE key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return value, nil
}

// Set implements Cache.
func (c *Postgres) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, value, expires_at)
		 VALUES ($1, $2, NOW() + $3::interval)
		 ON CONFLICT (key) DO UPDATE SET value = $2, expires_at = NOW() + $3::interval`,
		key, value, fmt.Sprintf("%f seconds", ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to set cache entry %s: %w", key, err)
	}
	return nil
}

// Delete implements Cache.
func (c *Postgres) Delete(ctx context.Context, key string) error {
	_, err := c.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// TTL implements Cache.
func (c *Postgres) TTL(ctx context.Context, key string) (time.Duration, error) {
	var seconds float64
	err := c.pool.QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM expires_at - NOW())
		 FROM cache_entries WHERE key = $1 AND expires_at > NOW()`,
		key,
	).Scan(&seconds)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read TTL for cache entry %s: %w", key, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
