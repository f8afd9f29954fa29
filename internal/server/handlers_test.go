package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/metacurate/curation-engine/internal/admission"
	"github.com/metacurate/curation-engine/internal/config"
	"github.com/metacurate/curation-engine/internal/overrides"
	"github.com/metacurate/curation-engine/internal/types"
)

type fakeValidation struct {
	startSnapshot types.TaskSnapshot
	startErr      error
	startCalls    int

	resolveSnapshot types.TaskSnapshot
	resolveReport   *types.Report
	resolveErr      error
	resolvedTaskID  string

	terminateMatched bool
	terminateErr     error
	terminatedTask   string
}

func (f *fakeValidation) StartRun(_ context.Context, _ string, _, _ bool, _ time.Duration) (types.TaskSnapshot, error) {
	f.startCalls++
	return f.startSnapshot, f.startErr
}

func (f *fakeValidation) Resolve(_ context.Context, _, taskID string) (types.TaskSnapshot, *types.Report, error) {
	f.resolvedTaskID = taskID
	return f.resolveSnapshot, f.resolveReport, f.resolveErr
}

func (f *fakeValidation) TerminateRun(_ context.Context, _, taskID string) (bool, error) {
	f.terminatedTask = taskID
	return f.terminateMatched, f.terminateErr
}

type fakeOverrides struct {
	patched      []types.OverrideInput
	patchResult  []types.Override
	patchErr     error
	deleted      string
	deleteResult bool
	deleteErr    error
}

func (f *fakeOverrides) Patch(_ context.Context, _ string, inputs []types.OverrideInput) ([]types.Override, error) {
	f.patched = inputs
	return f.patchResult, f.patchErr
}

func (f *fakeOverrides) Delete(_ context.Context, _, overrideID string) (bool, error) {
	f.deleted = overrideID
	return f.deleteResult, f.deleteErr
}

func newTestServer(t *testing.T, validation *fakeValidation, ovr *fakeOverrides, jwtService *JWTService) *Server {
	t.Helper()
	return New(Config{Port: 0, LeaseTTL: 10 * time.Minute}, validation, ovr, jwtService, zap.NewNop().Sugar())
}

func doRequest(s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleStartRun_Accepted(t *testing.T) {
	validation := &fakeValidation{
		startSnapshot: types.TaskSnapshot{TaskID: "task-1", Status: "PENDING"},
	}
	s := newTestServer(t, validation, &fakeOverrides{}, nil)

	rec := doRequest(s, http.MethodPost, "/studies/GSE100/validation/runs", StartRunRequest{ApplyModifiers: true}, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.Task.TaskID)
	assert.Nil(t, resp.Report)
}

func TestHandleStartRun_EmptyBodyAllowed(t *testing.T) {
	validation := &fakeValidation{startSnapshot: types.TaskSnapshot{TaskID: "task-1"}}
	s := newTestServer(t, validation, &fakeOverrides{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/studies/GSE100/validation/runs", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, validation.startCalls)
}

func TestHandleStartRun_Conflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"already started", &admission.AlreadyStartedError{ResourceID: "GSE100", TaskID: "task-1"}},
		{"result exists", &admission.ResultExistsError{ResourceID: "GSE100", TaskID: "task-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeValidation{startErr: tt.err}, &fakeOverrides{}, nil)
			rec := doRequest(s, http.MethodPost, "/studies/GSE100/validation/runs", nil, nil)
			assert.Equal(t, http.StatusConflict, rec.Code)
		})
	}
}

func TestHandleStartRun_StartFailure(t *testing.T) {
	s := newTestServer(t, &fakeValidation{startErr: &admission.StartFailure{ResourceID: "GSE100"}}, &fakeOverrides{}, nil)
	rec := doRequest(s, http.MethodPost, "/studies/GSE100/validation/runs", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleResolveRun_StillRunning(t *testing.T) {
	validation := &fakeValidation{
		resolveSnapshot: types.TaskSnapshot{TaskID: "task-1", Status: "STARTED"},
	}
	s := newTestServer(t, validation, &fakeOverrides{}, nil)

	rec := doRequest(s, http.MethodGet, "/studies/GSE100/validation/runs", nil, nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "", validation.resolvedTaskID)
	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Report)
}

func TestHandleResolveRun_Finished(t *testing.T) {
	ok := true
	validation := &fakeValidation{
		resolveSnapshot: types.TaskSnapshot{TaskID: "task-1", Status: "SUCCESS", Ready: true, Successful: &ok},
		resolveReport:   &types.Report{TaskID: "task-1", ResourceID: "GSE100", Status: types.SeverityWarning},
	}
	s := newTestServer(t, validation, &fakeOverrides{}, nil)

	rec := doRequest(s, http.MethodGet, "/studies/GSE100/validation/runs/task-1", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "task-1", validation.resolvedTaskID)
	var resp RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.Equal(t, types.SeverityWarning, resp.Report.Status)
}

func TestHandleResolveRun_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no task", &admission.NotFoundError{ResourceID: "GSE100"}, http.StatusNotFound},
		{"transport failure", &admission.CheckStatusFailure{TaskID: "task-1"}, http.StatusBadGateway},
		{"remote failure", &admission.RemoteFailure{TaskID: "task-1", Message: "worker crashed"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeValidation{resolveErr: tt.err}, &fakeOverrides{}, nil)
			rec := doRequest(s, http.MethodGet, "/studies/GSE100/validation/runs", nil, nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHandleTerminateRun(t *testing.T) {
	validation := &fakeValidation{terminateMatched: true}
	s := newTestServer(t, validation, &fakeOverrides{}, nil)

	rec := doRequest(s, http.MethodDelete, "/studies/GSE100/validation/runs/task-1", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "task-1", validation.terminatedTask)
	var resp TerminateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Matched)
}

func TestHandlePatchOverrides(t *testing.T) {
	ovr := &fakeOverrides{
		patchResult: []types.Override{{ID: "ov-1", RuleID: "GSM_SAMPLE_01", NewType: types.SeverityInfo, Enabled: true}},
	}
	s := newTestServer(t, &fakeValidation{}, ovr, nil)

	body := PatchOverridesRequest{Overrides: []types.OverrideInput{
		{RuleID: "GSM_SAMPLE_01", NewType: types.SeverityInfo, Enabled: true},
	}}
	rec := doRequest(s, http.MethodPatch, "/studies/GSE100/validation/overrides", body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ovr.patched, 1)
	assert.Equal(t, "GSM_SAMPLE_01", ovr.patched[0].RuleID)
}

func TestHandlePatchOverrides_EmptyBatchRejected(t *testing.T) {
	ovr := &fakeOverrides{}
	s := newTestServer(t, &fakeValidation{}, ovr, nil)

	rec := doRequest(s, http.MethodPatch, "/studies/GSE100/validation/overrides", PatchOverridesRequest{}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ovr.patched)
}

func TestHandlePatchOverrides_InputError(t *testing.T) {
	ovr := &fakeOverrides{patchErr: &overrides.InputError{Index: 0}}
	s := newTestServer(t, &fakeValidation{}, ovr, nil)

	body := PatchOverridesRequest{Overrides: []types.OverrideInput{{RuleID: "GSM_SAMPLE_01"}}}
	rec := doRequest(s, http.MethodPatch, "/studies/GSE100/validation/overrides", body, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePatchOverrides_CuratorFromToken(t *testing.T) {
	jwtService := NewJWTService(&config.JWTConfig{Secret: "test-secret-key", ExpirationHours: 1})
	token, err := jwtService.GenerateToken("alice")
	require.NoError(t, err)

	ovr := &fakeOverrides{patchResult: []types.Override{}}
	s := newTestServer(t, &fakeValidation{}, ovr, jwtService)

	body := PatchOverridesRequest{Overrides: []types.OverrideInput{
		{RuleID: "GSM_SAMPLE_01", NewType: types.SeverityInfo, Enabled: true, Curator: "mallory"},
	}}
	rec := doRequest(s, http.MethodPatch, "/studies/GSE100/validation/overrides", body, map[string]string{
		"Authorization": "Bearer " + token,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ovr.patched, 1)
	assert.Equal(t, "alice", ovr.patched[0].Curator)
}

func TestMutatingRoutesRequireAuth(t *testing.T) {
	jwtService := NewJWTService(&config.JWTConfig{Secret: "test-secret-key", ExpirationHours: 1})
	s := newTestServer(t, &fakeValidation{}, &fakeOverrides{}, jwtService)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/studies/GSE100/validation/runs"},
		{http.MethodDelete, "/studies/GSE100/validation/runs/task-1"},
		{http.MethodPatch, "/studies/GSE100/validation/overrides"},
		{http.MethodDelete, "/studies/GSE100/validation/overrides/ov-1"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := doRequest(s, p.method, p.path, nil, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestReadRoutesSkipAuth(t *testing.T) {
	jwtService := NewJWTService(&config.JWTConfig{Secret: "test-secret-key", ExpirationHours: 1})
	validation := &fakeValidation{resolveSnapshot: types.TaskSnapshot{TaskID: "task-1"}}
	s := newTestServer(t, validation, &fakeOverrides{}, jwtService)

	rec := doRequest(s, http.MethodGet, "/studies/GSE100/validation/runs", nil, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleDeleteOverride(t *testing.T) {
	ovr := &fakeOverrides{deleteResult: true}
	s := newTestServer(t, &fakeValidation{}, ovr, nil)

	rec := doRequest(s, http.MethodDelete, "/studies/GSE100/validation/overrides/ov-1", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ov-1", ovr.deleted)
}

func TestHandleDeleteOverride_Missing(t *testing.T) {
	s := newTestServer(t, &fakeValidation{}, &fakeOverrides{deleteResult: false}, nil)

	rec := doRequest(s, http.MethodDelete, "/studies/GSE100/validation/overrides/ov-unknown", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &fakeValidation{}, &fakeOverrides{}, nil)

	rec := doRequest(s, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
