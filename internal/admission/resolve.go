package admission

import (
	"context"
	"fmt"

	"github.com/metacurate/curation-engine/internal/aggregate"
	"github.com/metacurate/curation-engine/internal/reconcile"
	"github.com/metacurate/curation-engine/internal/types"
)

// historyMessage marks snapshots answered from the report store instead of
// the executor.
const historyMessage = "restored from report history"

// Resolve reports the state of a validation run and, once the run is ready,
// converts its raw output into the finalized, reconciled report. taskID may
// be empty, in which case the resource's current lease supplies it. Once a
// finalized report exists for the pair, it is returned directly and the
// executor is never polled. A run that is ready but not successful yields a
// RemoteFailure; the lease and the task are released on the success and
// failure paths alike.
func (c *Controller) Resolve(ctx context.Context, resourceID, taskID string) (types.TaskSnapshot, *types.Report, error) {
	leaseKey := types.LeaseKey(resourceID)

	fromLease := false
	if taskID == "" {
		leased, err := c.cache.Get(ctx, leaseKey)
		if err != nil {
			return types.TaskSnapshot{}, nil, &CheckStatusFailure{TaskID: taskID, Cause: err}
		}
		if leased == "" {
			return types.TaskSnapshot{}, nil, &NotFoundError{ResourceID: resourceID}
		}
		taskID = leased
		fromLease = true
	}

	stored, err := c.reports.Load(ctx, resourceID, taskID)
	if err != nil {
		return types.TaskSnapshot{}, nil, &CheckStatusFailure{TaskID: taskID, Cause: err}
	}
	if stored != nil {
		successful := true
		return types.TaskSnapshot{
			TaskID:     taskID,
			Status:     string(stored.Status),
			Ready:      true,
			Successful: &successful,
			Message:    historyMessage,
		}, stored, nil
	}

	if !fromLease {
		// An explicitly supplied task id must belong to this resource's
		// current run; otherwise any task could be resolved against any
		// resource.
		leased, err := c.cache.Get(ctx, leaseKey)
		if err != nil {
			return types.TaskSnapshot{}, nil, &CheckStatusFailure{TaskID: taskID, Cause: err}
		}
		if leased != taskID {
			return types.TaskSnapshot{}, nil, &NotFoundError{ResourceID: resourceID, TaskID: taskID}
		}
	}

	status, err := c.executor.GetStatus(ctx, taskID)
	if err != nil {
		return types.TaskSnapshot{}, nil, &CheckStatusFailure{TaskID: taskID, Cause: err}
	}
	if status == nil {
		return types.TaskSnapshot{}, nil, &NotFoundError{ResourceID: resourceID, TaskID: taskID}
	}

	snapshot := status.Snapshot()
	if !status.Ready {
		return snapshot, nil, nil
	}

	if !status.Successful {
		failure := &RemoteFailure{TaskID: taskID, Message: status.Message}
		if phases, perr := c.executor.GetResult(ctx, taskID); perr != nil {
			failure.Cause = perr
		} else if len(phases) > 0 && failure.Message == "" {
			failure.Message = fmt.Sprintf("run produced %d phase result(s) before failing", len(phases))
		}
		c.releaseRun(ctx, resourceID, taskID)
		return snapshot, nil, failure
	}

	phases, err := c.executor.GetResult(ctx, taskID)
	if err != nil {
		c.releaseRun(ctx, resourceID, taskID)
		return snapshot, nil, &CheckStatusFailure{TaskID: taskID, Cause: err}
	}

	report := aggregate.MergePhases(phases, c.now())
	report.TaskID = taskID
	report.ResourceID = resourceID

	// Catalog and override lookups must not abort resolution; reconciliation
	// falls back to denormalized and default values.
	if overrides, err := c.overrides.Load(ctx, resourceID); err != nil {
		c.log.Warnw("failed to load overrides, reconciling without them",
			"resource_id", resourceID, "error", err)
	} else {
		report.Overrides = overrides
	}
	defs, err := c.catalog.GetDefinitions(ctx)
	if err != nil {
		c.log.Warnw("failed to load rule catalog", "resource_id", resourceID, "error", err)
	}
	reconcile.Reconcile(report, defs)

	if err := c.reports.Save(ctx, resourceID, taskID, report); err != nil {
		c.releaseRun(ctx, resourceID, taskID)
		return snapshot, nil, fmt.Errorf("failed to persist report for %s/%s: %w", resourceID, taskID, err)
	}

	c.releaseRun(ctx, resourceID, taskID)
	c.log.Infow("validation run resolved",
		"resource_id", resourceID, "task_id", taskID, "status", report.Status)
	return snapshot, report, nil
}

// releaseRun drops the lease and releases (without terminating) the task.
// Both are best-effort and run on failure paths too.
func (c *Controller) releaseRun(ctx context.Context, resourceID, taskID string) {
	c.releaseLease(ctx, resourceID)
	if err := c.executor.Terminate(ctx, taskID, false); err != nil {
		c.log.Warnw("failed to release task", "task_id", taskID, "error", err)
	}
}
