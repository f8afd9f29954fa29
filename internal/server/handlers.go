package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/metacurate/curation-engine/internal/admission"
	"github.com/metacurate/curation-engine/internal/overrides"
	"github.com/metacurate/curation-engine/internal/server/middleware"
	"github.com/metacurate/curation-engine/internal/types"
)

// StartRunRequest represents the request body for starting a validation run.
type StartRunRequest struct {
	ApplyModifiers       bool `json:"apply_modifiers,omitempty"`
	OverrideReadyResults bool `json:"override_ready_results,omitempty"`
}

// RunResponse wraps a task snapshot and, once available, the finalized report.
type RunResponse struct {
	Task   types.TaskSnapshot `json:"task"`
	Report *types.Report      `json:"report,omitempty"`
}

// TerminateResponse reports whether the terminated task matched the
// resource's current run.
type TerminateResponse struct {
	TaskID  string `json:"task_id"`
	Matched bool   `json:"matched"`
}

// PatchOverridesRequest represents the request body for patching overrides.
type PatchOverridesRequest struct {
	Overrides []types.OverrideInput `json:"overrides"`
}

// DeleteOverrideResponse reports whether the override existed.
type DeleteOverrideResponse struct {
	OverrideID string `json:"override_id"`
	Deleted    bool   `json:"deleted"`
}

// router assembles the route table. Mutating routes go through JWT auth when
// a service is configured.
func (s *Server) router(jwtService *JWTService) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if jwtService == nil {
			return h
		}
		return middleware.AuthMiddleware(jwtService.AsTokenValidator())(h)
	}

	mux.Handle("POST /studies/{id}/validation/runs", protect(s.handleStartRun))
	mux.HandleFunc("GET /studies/{id}/validation/runs", s.handleResolveRun)
	mux.HandleFunc("GET /studies/{id}/validation/runs/{task_id}", s.handleResolveRun)
	mux.Handle("DELETE /studies/{id}/validation/runs/{task_id}", protect(s.handleTerminateRun))
	mux.Handle("PATCH /studies/{id}/validation/overrides", protect(s.handlePatchOverrides))
	mux.Handle("DELETE /studies/{id}/validation/overrides/{override_id}", protect(s.handleDeleteOverride))
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// handleStartRun admits a new validation run for a study.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")
	if resourceID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Study ID is required")
		return
	}

	var req StartRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	snapshot, err := s.validation.StartRun(r.Context(), resourceID, req.ApplyModifiers, req.OverrideReadyResults, s.leaseTTL)
	if err != nil {
		s.engineError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusAccepted, RunResponse{Task: snapshot})
}

// handleResolveRun reports the state of a run and, once it finished
// successfully, the finalized report.
func (s *Server) handleResolveRun(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")
	if resourceID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Study ID is required")
		return
	}
	taskID := r.PathValue("task_id")

	snapshot, report, err := s.validation.Resolve(r.Context(), resourceID, taskID)
	if err != nil {
		s.engineError(w, err)
		return
	}

	status := http.StatusOK
	if report == nil {
		// Still running; the caller polls again.
		status = http.StatusAccepted
	}
	s.jsonResponse(w, status, RunResponse{Task: snapshot, Report: report})
}

// handleTerminateRun kills a running task and releases its lease.
func (s *Server) handleTerminateRun(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")
	taskID := r.PathValue("task_id")
	if resourceID == "" || taskID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Study ID and task ID are required")
		return
	}

	matched, err := s.validation.TerminateRun(r.Context(), resourceID, taskID)
	if err != nil {
		s.engineError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, TerminateResponse{TaskID: taskID, Matched: matched})
}

// handlePatchOverrides applies a batch of override inputs. The authenticated
// curator is stamped onto every input, replacing whatever the client sent.
func (s *Server) handlePatchOverrides(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")
	if resourceID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Study ID is required")
		return
	}

	var req PatchOverridesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Overrides) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "At least one override input is required")
		return
	}

	if curator, err := middleware.GetCurator(r); err == nil {
		for i := range req.Overrides {
			req.Overrides[i].Curator = curator
		}
	}

	updated, err := s.overrides.Patch(r.Context(), resourceID, req.Overrides)
	if err != nil {
		s.engineError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{"overrides": updated})
}

// handleDeleteOverride removes one override record by id.
func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	resourceID := r.PathValue("id")
	overrideID := r.PathValue("override_id")
	if resourceID == "" || overrideID == "" {
		s.errorResponse(w, http.StatusBadRequest, "Study ID and override ID are required")
		return
	}

	deleted, err := s.overrides.Delete(r.Context(), resourceID, overrideID)
	if err != nil {
		s.engineError(w, err)
		return
	}

	status := http.StatusOK
	if !deleted {
		status = http.StatusNotFound
	}
	s.jsonResponse(w, status, DeleteOverrideResponse{OverrideID: overrideID, Deleted: deleted})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// engineError translates typed engine errors into HTTP status codes.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	var (
		alreadyStarted *admission.AlreadyStartedError
		resultExists   *admission.ResultExistsError
		notFound       *admission.NotFoundError
		checkStatus    *admission.CheckStatusFailure
		remote         *admission.RemoteFailure
		startFailure   *admission.StartFailure
		inputErr       *overrides.InputError
	)

	switch {
	case errors.As(err, &alreadyStarted), errors.As(err, &resultExists):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.As(err, &notFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.As(err, &checkStatus), errors.As(err, &remote):
		s.errorResponse(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &startFailure):
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	case errors.As(err, &inputErr):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorw("unhandled engine error", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}
