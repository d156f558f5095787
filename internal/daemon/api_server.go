package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"reelsmith/internal/api"
	"reelsmith/internal/job"
	"reelsmith/internal/jobstore"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
	"reelsmith/internal/workflow"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 << 10

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router chi.Router

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware, middleware.Recoverer, srv.accessLog)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(d.cfg.Paths.APIToken))
		r.Get("/status", srv.handleStatus)
		r.Post("/notifications/test", srv.handleTestNotification)
		r.Route("/jobs", func(r chi.Router) {
			r.With(srv.submitLimit(d.cfg.Paths.SubmitLimitPerHour)).Post("/", srv.handleSubmit)
			r.Get("/", srv.handleList)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", srv.handleJob)
				r.Delete("/", srv.handleDelete)
				r.Get("/artifact", srv.handleArtifact)
				r.Get("/artifact/file", srv.handleArtifactFile)
				r.Post("/cancel", srv.handleCancel)
			})
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		srv.writeError(w, r, http.StatusNotFound, "not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		srv.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
	})
	srv.router = r
	return srv
}

// submitLimit throttles job submissions per client address.
func (s *apiServer) submitLimit(perHour int) func(http.Handler) http.Handler {
	if perHour <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perHour, time.Hour,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.writeError(w, r, http.StatusTooManyRequests,
				fmt.Sprintf("submission limit reached: %d jobs per hour", perHour), "rate_limited")
		}),
	)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Artifact downloads stream whole videos.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	server := s.server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil || s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
	s.listener = nil
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
	})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err), "")
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotifyResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error(), string(services.KindValidation))
		return
	}
	sceneCount := req.SceneCount
	if sceneCount == 0 {
		sceneCount = s.daemon.cfg.Pipeline.DefaultScenes
	}
	id, err := s.daemon.workflow.Submit(r.Context(), req.Prompt, sceneCount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+id)
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{ID: id, State: string(job.StatePending)})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var states []job.State
	for _, value := range r.URL.Query()["state"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		state, ok := job.ParseState(strings.ToLower(trimmed))
		if !ok {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown state %q", trimmed), string(services.KindValidation))
			return
		}
		states = append(states, state)
	}
	views, err := s.daemon.workflow.List(r.Context(), states...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := api.FromViews(views)
	if items == nil {
		items = []api.Job{}
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Items: items})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.workflow.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromView(view)})
}

func (s *apiServer) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	artifact, err := s.daemon.workflow.FinalArtifact(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ArtifactResponse{ID: id, Artifact: api.FromMedia(artifact)})
}

func (s *apiServer) handleArtifactFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	artifact, err := s.daemon.workflow.FinalArtifact(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if artifact.Remote() {
		http.Redirect(w, r, artifact.Location, http.StatusFound)
		return
	}
	f, err := os.Open(artifact.Location)
	if err != nil {
		s.writeError(w, r, http.StatusGone, "artifact file unavailable", string(services.KindMissing))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(artifact.Location)))
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.daemon.workflow.Cancel(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	view, err := s.daemon.workflow.Status(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.JobResponse{Job: api.FromView(view)})
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.workflow.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{ID: view.ID, State: string(view.State)})
}

// writeServiceError maps workflow and store errors onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workflow.ErrTerminal):
		s.writeError(w, r, http.StatusConflict, err.Error(), "terminal")
	case errors.Is(err, workflow.ErrActive):
		s.writeError(w, r, http.StatusConflict, err.Error(), "active")
	case errors.Is(err, jobstore.ErrNotReady):
		s.writeError(w, r, http.StatusConflict, err.Error(), "not_ready")
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, r, http.StatusBadRequest, err.Error(), string(services.KindValidation))
	case errors.Is(err, workflow.ErrNotRunning):
		s.writeError(w, r, http.StatusServiceUnavailable, err.Error(), "")
	default:
		logging.WithContext(r.Context(), s.logger).Error("api request failed",
			logging.Args(logging.ErrorAttrs(err)...)...)
		s.writeError(w, r, http.StatusInternalServerError, err.Error(), string(services.KindOf(err)))
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, status int, message, kind string) {
	requestID, _ := services.RequestIDFromContext(r.Context())
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind, RequestID: requestID})
}

func (s *apiServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.WithContext(r.Context(), s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}
