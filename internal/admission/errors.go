// Package admission guards validation runs with a cache-backed lease and
// resolves their asynchronous results into finalized reports.
package admission

import "fmt"

// AlreadyStartedError is returned when a fresh lease shows a run was
// started very recently. Callers retry later.
type AlreadyStartedError struct {
	ResourceID string
	TaskID     string
}

func (e *AlreadyStartedError) Error() string {
	return fmt.Sprintf("validation of %s already started as task %s", e.ResourceID, e.TaskID)
}

// ResultExistsError is returned when a prior successful run has not been
// read or deleted and the caller did not ask to override it.
type ResultExistsError struct {
	ResourceID string
	TaskID     string
}

func (e *ResultExistsError) Error() string {
	return fmt.Sprintf("a completed validation result for %s exists as task %s; read or delete it first", e.ResourceID, e.TaskID)
}

// StartFailure is returned when a run was dispatched but could not be
// confirmed with the executor. Callers retry.
type StartFailure struct {
	ResourceID string
	Cause      error
}

func (e *StartFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to start validation of %s: %v", e.ResourceID, e.Cause)
	}
	return fmt.Sprintf("failed to start validation of %s", e.ResourceID)
}

func (e *StartFailure) Unwrap() error {
	return e.Cause
}

// NotFoundError is returned when no lease or task exists for the resource,
// or the requested task id does not belong to the resource's current run.
type NotFoundError struct {
	ResourceID string
	TaskID     string
}

func (e *NotFoundError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("no validation task %s found for %s", e.TaskID, e.ResourceID)
	}
	return fmt.Sprintf("no validation task found for %s", e.ResourceID)
}

// CheckStatusFailure is returned on transport errors while polling the
// executor. Callers retry with backoff.
type CheckStatusFailure struct {
	TaskID string
	Cause  error
}

func (e *CheckStatusFailure) Error() string {
	return fmt.Sprintf("failed to check status of task %s: %v", e.TaskID, e.Cause)
}

func (e *CheckStatusFailure) Unwrap() error {
	return e.Cause
}

// RemoteFailure is returned when the run completed unsuccessfully. It is a
// final state, not retried; any diagnostic payload the executor yielded is
// carried in Message.
type RemoteFailure struct {
	TaskID  string
	Message string
	Cause   error
}

func (e *RemoteFailure) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("validation task %s failed remotely: %s", e.TaskID, e.Message)
	}
	return fmt.Sprintf("validation task %s failed remotely", e.TaskID)
}

func (e *RemoteFailure) Unwrap() error {
	return e.Cause
}
