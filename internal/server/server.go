package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/metacurate/curation-engine/internal/types"
)

// ValidationService is the produced interface of the admission controller.
type ValidationService interface {
	StartRun(ctx context.Context, resourceID string, applyModifiers, overrideReadyResults bool, leaseTTL time.Duration) (types.TaskSnapshot, error)
	Resolve(ctx context.Context, resourceID, taskID string) (types.TaskSnapshot, *types.Report, error)
	TerminateRun(ctx context.Context, resourceID, taskID string) (bool, error)
}

// OverrideService is the produced interface of the override CRUD service.
type OverrideService interface {
	Patch(ctx context.Context, resourceID string, inputs []types.OverrideInput) ([]types.Override, error)
	Delete(ctx context.Context, resourceID, overrideID string) (bool, error)
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	validation ValidationService
	overrides  OverrideService
	leaseTTL   time.Duration
	log        *zap.SugaredLogger
}

// Config holds server configuration.
type Config struct {
	Port     int
	LeaseTTL time.Duration
}

// New creates a new server instance. jwtService may be nil to disable
// authentication (local development).
func New(cfg Config, validation ValidationService, overrides OverrideService, jwtService *JWTService, log *zap.SugaredLogger) *Server {
	s := &Server{
		validation: validation,
		overrides:  overrides,
		leaseTTL:   cfg.LeaseTTL,
		log:        log,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router(jwtService),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for requests and blocks until interrupted.
func (s *Server) Start() error {
	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.log.Infow("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatalw("server error", "error", err)
		}
	}()

	<-stop
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warnw("failed to encode response", "error", err)
	}
}

// errorResponse writes an error JSON response.
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
