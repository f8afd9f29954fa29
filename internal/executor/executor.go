// Package executor provides the client for the remote rule-engine runner
// that executes validation jobs asynchronously.
package executor

import (
	"context"

	"github.com/metacurate/curation-engine/internal/types"
)

// DispatchParams carries the run options forwarded to the rule engine.
type DispatchParams struct {
	ApplyModifiers bool `json:"apply_modifiers"`
}

// Status is the executor-reported state of a task. Successful is only
// meaningful once Ready is true.
type Status struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Ready      bool   `json:"ready"`
	Successful bool   `json:"successful"`
	Message    string `json:"message,omitempty"`
}

// Snapshot converts the executor status into the caller-facing snapshot
// shape, populating Successful only for ready tasks.
func (s *Status) Snapshot() types.TaskSnapshot {
	snap := types.TaskSnapshot{
		TaskID:  s.TaskID,
		Status:  s.Status,
		Ready:   s.Ready,
		Message: s.Message,
	}
	if s.Ready {
		successful := s.Successful
		snap.Successful = &successful
	}
	return snap
}

// Executor dispatches validation jobs and reports on their lifecycle.
// GetStatus returns (nil, nil) when the executor does not know the task.
// Terminate with force=false releases a finished task without stopping it.
type Executor interface {
	Dispatch(ctx context.Context, resourceID string, params DispatchParams) (string, error)
	GetStatus(ctx context.Context, taskID string) (*Status, error)
	GetResult(ctx context.Context, taskID string) ([]types.PhaseResult, error)
	Terminate(ctx context.Context, taskID string, force bool) error
}
