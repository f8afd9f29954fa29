package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metacurate/curation-engine/internal/types"
)

// Postgres persists reports and override documents as JSONB rows.
//
// Expected schema:
//
//	CREATE TABLE validation_reports (
//	    resource_id TEXT NOT NULL,
//	    task_id     TEXT NOT NULL,
//	    content     JSONB NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    PRIMARY KEY (resource_id, task_id)
//	);
//	CREATE TABLE validation_overrides (
//	    resource_id TEXT PRIMARY KEY,
//	    content     JSONB NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool exposes the underlying connection pool so other backends (the lease
// cache) can share it.
func (s *Postgres) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Load implements ReportStore.
func (s *Postgres) Load(ctx context.Context, resourceID, taskID string) (*types.Report, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM validation_reports WHERE resource_id = $1 AND task_id = $2`,
		resourceID, taskID,
	).Scan(&content)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load report %s/%s: %w", resourceID, taskID, err)
	}

	var report types.Report
	if err := json.Unmarshal(content, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s/%s: %w", resourceID, taskID, err)
	}
	return &report, nil
}

// Save implements ReportStore.
func (s *Postgres) Save(ctx context.Context, resourceID, taskID string, report *types.Report) error {
	content, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report %s/%s: %w", resourceID, taskID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO validation_reports (resource_id, task_id, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (resource_id, task_id) DO UPDATE SET content = $3, created_at = NOW()`,
		resourceID, taskID, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s/%s: %w", resourceID, taskID, err)
	}
	return nil
}

// LoadOverrides implements OverrideStore via the Overrides adapter.
func (s *Postgres) LoadOverrides(ctx context.Context, resourceID string) ([]types.Override, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM validation_overrides WHERE resource_id = $1`,
		resourceID,
	).Scan(&content)
	if err != nil {
		if err == pgx.ErrNoRows {
			return []types.Override{}, nil
		}
		return nil, fmt.Errorf("failed to load overrides for %s: %w", resourceID, err)
	}

	var overrides []types.Override
	if err := json.Unmarshal(content, &overrides); err != nil {
		return nil, fmt.Errorf("failed to decode overrides for %s: %w", resourceID, err)
	}
	return overrides, nil
}

// SaveOverrides implements OverrideStore via the Overrides adapter.
func (s *Postgres) SaveOverrides(ctx context.Context, resourceID string, overrides []types.Override) error {
	content, err := json.Marshal(overrides)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides for %s: %w", resourceID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO validation_overrides (resource_id, content)
		 VALUES ($1, $2)
		 ON CONFLICT (resource_id) DO UPDATE SET content = $2, updated_at = NOW()`,
		resourceID, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save overrides for %s: %w", resourceID, err)
	}
	return nil
}

// Overrides returns the OverrideStore view of the Postgres backend.
func (s *Postgres) Overrides() OverrideStore {
	return postgresOverrides{s}
}

type postgresOverrides struct{ s *Postgres }

func (p postgresOverrides) Load(ctx context.Context, resourceID string) ([]types.Override, error) {
	return p.s.LoadOverrides(ctx, resourceID)
}

func (p postgresOverrides) Save(ctx context.Context, resourceID string, overrides []types.Override) error {
	return p.s.SaveOverrides(ctx, resourceID, overrides)
}
