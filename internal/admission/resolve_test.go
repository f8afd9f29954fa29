package admission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacurate/curation-engine/internal/executor"
	"github.com/metacurate/curation-engine/internal/types"
)

func TestResolve_NoLeaseAndNoTaskID(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.controller.Resolve(context.Background(), "MTBLS1", "")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "MTBLS1", notFound.ResourceID)
}

func TestResolve_HistoryShortCircuitsExecutor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stored := &types.Report{TaskID: "task-1", ResourceID: "MTBLS1", Status: types.SeverityWarning}
	require.NoError(t, f.reports.Save(ctx, "MTBLS1", "task-1", stored))
	// A transport error here must not matter: history answers first.
	f.executor.statusErrs["task-1"] = fmt.Errorf("executor down")

	snapshot, report, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")
	require.NoError(t, err)

	assert.True(t, snapshot.Ready)
	require.NotNil(t, snapshot.Successful)
	assert.True(t, *snapshot.Successful)
	assert.Equal(t, historyMessage, snapshot.Message)
	assert.Equal(t, stored, report)
}

func TestResolve_ExplicitTaskIDMustMatchLease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-current", 600*time.Second))

	_, _, err := f.controller.Resolve(ctx, "MTBLS1", "task-foreign")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "task-foreign", notFound.TaskID)
}

func TestResolve_LeaseDerivedTaskSkipsGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	f.executor.statuses["task-1"] = &executor.Status{TaskID: "task-1", Status: "RUNNING", Ready: false}

	snapshot, report, err := f.controller.Resolve(ctx, "MTBLS1", "")
	require.NoError(t, err)

	assert.Equal(t, "task-1", snapshot.TaskID)
	assert.False(t, snapshot.Ready)
	assert.Nil(t, report)
}

func TestResolve_TransportErrorIsCheckStatusFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	f.executor.statusErrs["task-1"] = fmt.Errorf("connection refused")

	_, _, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")

	var checkFailure *CheckStatusFailure
	require.ErrorAs(t, err, &checkFailure)
}

func TestResolve_UnknownTaskIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	// No scripted status: the executor does not know the task.

	_, _, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResolve_SuccessMergesReconcilesPersistsAndReleases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	f.executor.statuses["task-1"] = &executor.Status{TaskID: "task-1", Status: "SUCCESS", Ready: true, Successful: true}
	f.executor.results["task-1"] = []types.PhaseResult{
		{
			ResourceID: "MTBLS1",
			Violations: []types.Violation{
				{Identifier: "rule.100.001", SourceFile: "s_X.txt", Type: types.SeverityError},
			},
			StartTime:      "2026-03-14T11:58:00Z",
			CompletionTime: "2026-03-14T11:59:00Z",
		},
	}
	f.overrides.lists["MTBLS1"] = []types.Override{
		{ID: "ov-1", RuleID: "rule.100.001", Enabled: true, NewType: types.SeverityInfo, Comment: "curator accepted"},
	}

	snapshot, report, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")
	require.NoError(t, err)

	assert.True(t, snapshot.Ready)
	require.NotNil(t, report)
	assert.Equal(t, "task-1", report.TaskID)
	assert.Equal(t, "MTBLS1", report.ResourceID)
	require.Len(t, report.Violations, 1)
	assert.True(t, report.Violations[0].Overridden)
	assert.Equal(t, types.SeverityInfo, report.Violations[0].Type)
	assert.Equal(t, types.SeverityInfo, report.Status)

	// Persisted, lease released, task released without force.
	assert.Equal(t, report, f.reports.reports["MTBLS1/task-1"])
	assert.Empty(t, f.lease(t, "MTBLS1"))
	assert.Equal(t, []string{"task-1"}, f.executor.released)
	assert.Empty(t, f.executor.terminated)
}

func TestResolve_RemoteFailureReleasesLeaseAndTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	f.executor.statuses["task-1"] = &executor.Status{TaskID: "task-1", Status: "FAILURE", Ready: true, Successful: false, Message: "rule engine crashed"}

	snapshot, report, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")

	var remoteFailure *RemoteFailure
	require.ErrorAs(t, err, &remoteFailure)
	assert.Equal(t, "rule engine crashed", remoteFailure.Message)
	assert.True(t, snapshot.Ready)
	assert.Nil(t, report)
	assert.Empty(t, f.lease(t, "MTBLS1"))
	assert.Equal(t, []string{"task-1"}, f.executor.released)
}

func TestResolve_RemoteFailureCarriesDiagnosticError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	f.executor.statuses["task-1"] = &executor.Status{TaskID: "task-1", Status: "FAILURE", Ready: true, Successful: false}
	f.executor.resultErr = fmt.Errorf("result expired")

	_, _, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")

	var remoteFailure *RemoteFailure
	require.ErrorAs(t, err, &remoteFailure)
	assert.ErrorContains(t, remoteFailure.Cause, "result expired")
	assert.Empty(t, f.lease(t, "MTBLS1"))
}

func TestResolve_ResultFetchFailureStillReleases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	f.executor.statuses["task-1"] = &executor.Status{TaskID: "task-1", Status: "SUCCESS", Ready: true, Successful: true}
	f.executor.resultErr = fmt.Errorf("payload gone")

	_, _, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")

	var checkFailure *CheckStatusFailure
	require.ErrorAs(t, err, &checkFailure)
	assert.Empty(t, f.lease(t, "MTBLS1"))
	assert.Equal(t, []string{"task-1"}, f.executor.released)
}

func TestResolve_SaveFailureStillReleases(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Set(ctx, types.LeaseKey("MTBLS1"), "task-1", 600*time.Second))
	f.executor.statuses["task-1"] = &executor.Status{TaskID: "task-1", Status: "SUCCESS", Ready: true, Successful: true}
	f.reports.saveErr = fmt.Errorf("disk full")

	_, _, err := f.controller.Resolve(ctx, "MTBLS1", "task-1")

	require.Error(t, err)
	assert.Empty(t, f.lease(t, "MTBLS1"))
	assert.Equal(t, []string{"task-1"}, f.executor.released)
}
