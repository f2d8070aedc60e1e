package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"loopdeck/internal/api"
	"loopdeck/internal/config"
	"loopdeck/internal/logging"
	"loopdeck/internal/rights"
	"loopdeck/internal/services"
)

type apiServer struct {
	bind       string
	cfg        config.API
	logger     *slog.Logger
	daemon     *Daemon
	queueSvc   *api.QueueService
	catalogSvc *api.CatalogService

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:       bind,
		cfg:        cfg.API,
		logger:     logging.NewComponentLogger(logger, "api-server"),
		daemon:     d,
		queueSvc:   api.NewQueueService(d.store),
		catalogSvc: api.NewCatalogService(d.catalog.Store()),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Submit and reconcile run synchronously; separation can take minutes.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.cfg, s.logger))

		r.Get("/api/status", s.handleStatus)
		r.Post("/api/notifications/test", s.handleTestNotification)

		r.Get("/api/queue/health", s.handleQueueHealth)
		r.Get("/api/tracks", s.handleTracks)
		r.Post("/api/tracks/retry", s.handleRetry)
		r.Get("/api/tracks/{sourceID}", s.handleTrack)
		r.Post("/api/tracks/{sourceID}/submit/{stage}", s.handleSubmit)
		r.Post("/api/tracks/{sourceID}/reingest", s.handleReingest)
		r.Post("/api/tracks/{sourceID}/reject", s.handleReject)

		r.Get("/api/review", s.handleReviewList)
		r.Post("/api/review/{sourceID}/approve", s.handleReviewApprove)
		r.Post("/api/review/{sourceID}/reject", s.handleReviewReject)

		r.Post("/api/ingest", s.handleIngest)

		r.Get("/api/rights", s.handleRightsList)
		r.Get("/api/rights/{sourceID}", s.handleRights)
		r.Post("/api/rights/{sourceID}", s.handleSetRights)

		r.Get("/api/catalog", s.handleCatalog)
		r.Post("/api/catalog/reconcile", s.handleReconcile)
		r.Get("/api/catalog/{sourceID}", s.handleCatalogEntry)
		r.Post("/api/catalog/{sourceID}/unpublish", s.handleUnpublish)
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.cfg.JWTSecret != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, s.logger, status, payload)
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeFailure maps a service error to its HTTP status.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("api request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	var rejection *services.RejectionError
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rights.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation), errors.Is(err, rights.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrComplianceViolation), errors.As(err, &rejection):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody reads an optional JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode body", err.Error(), nil)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("failed to encode response", logging.Error(err))
	}
}
