// Package store provides persistence for validation reports and override
// documents, with swappable Postgres and filesystem backends.
package store

import (
	"context"

	"github.com/metacurate/curation-engine/internal/types"
)

// ReportStore persists finalized validation reports keyed by resource and
// task. Load returns (nil, nil) when no report exists for the pair.
type ReportStore interface {
	Load(ctx context.Context, resourceID, taskID string) (*types.Report, error)
	Save(ctx context.Context, resourceID, taskID string, report *types.Report) error
}

// OverrideStore persists each resource's override list as a single
// document. Load returns an empty list when the resource has no document.
// Writes are read-modify-write with no concurrency token; concurrent
// patches to the same resource are last-write-wins.
type OverrideStore interface {
	Load(ctx context.Context, resourceID string) ([]types.Override, error)
	Save(ctx context.Context, resourceID string, overrides []types.Override) error
}
