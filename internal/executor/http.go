package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metacurate/curation-engine/internal/types"
)

// defaultTimeout bounds individual round-trips to the rule-engine runner.
const defaultTimeout = 30 * time.Second

// HTTPClient talks to the rule-engine runner's REST API:
//
//	POST   /jobs                       dispatch a run
//	GET    /tasks/{id}                 task status
//	GET    /tasks/{id}/phases          names of executed phases
//	GET    /tasks/{id}/result/{phase}  raw per-phase payload
//	DELETE /tasks/{id}?force=...       terminate or release a task
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the runner at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

// Dispatch implements Executor.
func (c *HTTPClient) Dispatch(ctx context.Context, resourceID string, params DispatchParams) (string, error) {
	body, err := json.Marshal(struct {
		ResourceID string         `json:"resource_id"`
		Params     DispatchParams `json:"params"`
	}{resourceID, params})
	if err != nil {
		return "", fmt.Errorf("failed to marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to dispatch job for %s: %w", resourceID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("dispatch for %s returned status %d", resourceID, resp.StatusCode)
	}

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode dispatch response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("dispatch for %s returned no task id", resourceID)
	}
	return out.TaskID, nil
}

// GetStatus implements Executor. A 404 means the runner does not know the
// task and returns (nil, nil), distinct from transport errors.
func (c *HTTPClient) GetStatus(ctx context.Context, taskID string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.taskURL(taskID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status of task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status fetch for task %s returned status %d", taskID, resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status of task %s: %w", taskID, err)
	}
	if status.TaskID == "" {
		status.TaskID = taskID
	}
	return &status, nil
}

// GetResult implements Executor. Phase payloads are independent documents
// on the runner side, so they are fetched concurrently.
func (c *HTTPClient) GetResult(ctx context.Context, taskID string) ([]types.PhaseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.taskURL(taskID)+"/phases", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build phases request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases of task %s: %w", taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("phase listing for task %s returned status %d", taskID, resp.StatusCode)
	}

	var phases []string
	if err := json.NewDecoder(resp.Body).Decode(&phases); err != nil {
		return nil, fmt.Errorf("failed to decode phase list of task %s: %w", taskID, err)
	}

	results := make([]types.PhaseResult, len(phases))
	g, gctx := errgroup.WithContext(ctx)
	for i, phase := range phases {
		g.Go(func() error {
			result, err := c.getPhaseResult(gctx, taskID, phase)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *HTTPClient) getPhaseResult(ctx context.Context, taskID, phase string) (types.PhaseResult, error) {
	u := c.taskURL(taskID) + "/result/" + url.PathEscape(phase)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.PhaseResult{}, fmt.Errorf("failed to build result request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return types.PhaseResult{}, fmt.Errorf("failed to fetch %s result of task %s: %w", phase, taskID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.PhaseResult{}, fmt.Errorf("%s result for task %s returned status %d", phase, taskID, resp.StatusCode)
	}

	var result types.PhaseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.PhaseResult{}, fmt.Errorf("failed to decode %s result of task %s: %w", phase, taskID, err)
	}
	return result, nil
}

// Terminate implements Executor.
func (c *HTTPClient) Terminate(ctx context.Context, taskID string, force bool) error {
	u := fmt.Sprintf("%s?force=%t", c.taskURL(taskID), force)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build terminate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to terminate task %s: %w", taskID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("terminate of task %s returned status %d", taskID, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) taskURL(taskID string) string {
	return c.baseURL + "/tasks/" + url.PathEscape(taskID)
}
