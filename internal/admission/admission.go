package admission

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/metacurate/curation-engine/internal/cache"
	"github.com/metacurate/curation-engine/internal/catalog"
	"github.com/metacurate/curation-engine/internal/executor"
	"github.com/metacurate/curation-engine/internal/store"
	"github.com/metacurate/curation-engine/internal/types"
)

// freshnessMargin separates a freshly started run from a stale lease: a
// lease whose remaining TTL is within this margin of the configured TTL
// was written moments ago.
const freshnessMargin = 10 * time.Second

// DefaultLeaseTTL bounds how long an unresolved run blocks new starts.
const DefaultLeaseTTL = 600 * time.Second

// Controller admits validation runs, one in flight per resource, and
// resolves their results. The lease cache entry is the only coordination
// primitive; the read-check-write sequence is deliberately not atomic, so
// two concurrent starts can race past each other (documented simplification,
// bounded by the lease TTL).
type Controller struct {
	cache     cache.Cache
	executor  executor.Executor
	reports   store.ReportStore
	overrides store.OverrideStore
	catalog   catalog.Catalog
	log       *zap.SugaredLogger
	now       func() time.Time
}

// New creates a controller over the given collaborators.
func New(c cache.Cache, exec executor.Executor, reports store.ReportStore, overrides store.OverrideStore, cat catalog.Catalog, log *zap.SugaredLogger) *Controller {
	return &Controller{
		cache:     c,
		executor:  exec,
		reports:   reports,
		overrides: overrides,
		catalog:   cat,
		log:       log,
		now:       time.Now,
	}
}

// StartRun admits a new validation run for the resource. A fresh lease
// rejects the start; a stale lease is reclaimed and its task terminated. A
// prior successful run blocks the start unless overrideReadyResults is set.
func (c *Controller) StartRun(ctx context.Context, resourceID string, applyModifiers, overrideReadyResults bool, leaseTTL time.Duration) (types.TaskSnapshot, error) {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	leaseKey := types.LeaseKey(resourceID)

	currentTaskID, err := c.cache.Get(ctx, leaseKey)
	if err != nil {
		return types.TaskSnapshot{}, &StartFailure{ResourceID: resourceID, Cause: err}
	}

	if currentTaskID != "" {
		status, err := c.executor.GetStatus(ctx, currentTaskID)
		switch {
		case err != nil:
			// Executor unreachable during lookup is recovered: drop the
			// lease and continue as if no run existed.
			c.log.Warnw("releasing lease after status lookup failure",
				"resource_id", resourceID, "task_id", currentTaskID, "error", err)
			c.releaseLease(ctx, resourceID)
		case status == nil:
			c.log.Infow("lease referenced an unknown task, releasing",
				"resource_id", resourceID, "task_id", currentTaskID)
			c.releaseLease(ctx, resourceID)
		default:
			if status.Ready && status.Successful && !overrideReadyResults {
				return types.TaskSnapshot{}, &ResultExistsError{ResourceID: resourceID, TaskID: currentTaskID}
			}
			remaining, err := c.cache.TTL(ctx, leaseKey)
			if err != nil {
				return types.TaskSnapshot{}, &StartFailure{ResourceID: resourceID, Cause: err}
			}
			if remaining > leaseTTL-freshnessMargin {
				return types.TaskSnapshot{}, &AlreadyStartedError{ResourceID: resourceID, TaskID: currentTaskID}
			}
			// Stale lease, or the caller asked to override a finished run:
			// reclaim the slot and stop the old task best-effort.
			c.releaseLease(ctx, resourceID)
			if err := c.executor.Terminate(ctx, currentTaskID, true); err != nil {
				c.log.Warnw("failed to terminate superseded task",
					"resource_id", resourceID, "task_id", currentTaskID, "error", err)
			}
		}
	}

	newTaskID, err := c.executor.Dispatch(ctx, resourceID, executor.DispatchParams{ApplyModifiers: applyModifiers})
	if err != nil {
		return types.TaskSnapshot{}, &StartFailure{ResourceID: resourceID, Cause: err}
	}

	// Confirm the executor actually accepted the task before leasing it.
	status, err := c.executor.GetStatus(ctx, newTaskID)
	if err != nil || status == nil {
		c.releaseLease(ctx, resourceID)
		return types.TaskSnapshot{}, &StartFailure{ResourceID: resourceID, Cause: err}
	}

	if err := c.cache.Set(ctx, leaseKey, newTaskID, leaseTTL); err != nil {
		return types.TaskSnapshot{}, &StartFailure{ResourceID: resourceID, Cause: err}
	}

	c.log.Infow("validation run started",
		"resource_id", resourceID, "task_id", newTaskID, "lease_ttl", leaseTTL)
	return status.Snapshot(), nil
}

// TerminateRun releases the resource's lease and force-terminates the
// referenced task best-effort. The returned bool reports whether the
// released lease actually matched taskID, which is the caller-visible "was
// something stopped" signal; remote termination failures are logged only.
func (c *Controller) TerminateRun(ctx context.Context, resourceID, taskID string) (bool, error) {
	currentTaskID, err := c.cache.Get(ctx, types.LeaseKey(resourceID))
	if err != nil {
		return false, err
	}
	matched := currentTaskID != "" && currentTaskID == taskID

	c.releaseLease(ctx, resourceID)

	status, err := c.executor.GetStatus(ctx, taskID)
	if err != nil {
		c.log.Warnw("status lookup failed during termination",
			"resource_id", resourceID, "task_id", taskID, "error", err)
		return matched, nil
	}
	if status == nil {
		// Nothing to stop remotely.
		return matched, nil
	}
	if err := c.executor.Terminate(ctx, taskID, true); err != nil {
		c.log.Warnw("remote terminate failed",
			"resource_id", resourceID, "task_id", taskID, "error", err)
	}
	return matched, nil
}

// releaseLease drops the resource's lease, logging failures instead of
// propagating them; lease release happens on error paths too.
func (c *Controller) releaseLease(ctx context.Context, resourceID string) {
	if err := c.cache.Delete(ctx, types.LeaseKey(resourceID)); err != nil {
		c.log.Warnw("failed to release lease", "resource_id", resourceID, "error", err)
	}
}
