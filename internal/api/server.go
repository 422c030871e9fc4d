package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/archiver"
	"github.com/JakeFAU/page-archiver/internal/config"
	"github.com/JakeFAU/page-archiver/internal/dispatcher"
	"github.com/JakeFAU/page-archiver/internal/metrics"
	"github.com/JakeFAU/page-archiver/internal/middleware"
	"github.com/JakeFAU/page-archiver/internal/storage"
	"github.com/JakeFAU/page-archiver/internal/storage/remote"
)

const (
	requestTimeout = 60 * time.Second
	enqueueTimeout = 5 * time.Second
)

// Server wires HTTP handlers to the dispatcher, run store and backend.
type Server struct {
	router     chi.Router
	runs       archive.RunStore
	dispatcher *dispatcher.Dispatcher
	backend    archive.Backend
	idGen      archive.IDGenerator
	clock      archive.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs archive.RunStore,
	dispatcher *dispatcher.Dispatcher,
	backend archive.Backend,
	idGen archive.IDGenerator,
	clock archive.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		runs:       runs,
		dispatcher: dispatcher,
		backend:    backend,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(requestTimeout))
	if cfg.Auth.Enabled {
		r.Use(middleware.APIKey(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/archives", func(r chi.Router) {
			r.Post("/", s.submitArchive)
			r.Get("/{run_id}", s.getRun)
		})
		r.Route("/objects", func(r chi.Router) {
			r.Get("/", s.listObjects)
			r.Get("/*", s.readObject)
			r.Head("/*", s.objectExists)
			r.Delete("/*", s.deleteObject)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.backend == nil || s.runs == nil || s.dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	if !s.dispatcher.Accepting() {
		s.writeError(w, http.StatusServiceUnavailable, "draining")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type archiveRequest struct {
	URL string `json:"url"`
}

func (s *Server) submitArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if _, err := archiver.ValidateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.enqueueRun(r.Context(), req.URL)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, dispatcher.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("enqueue run failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) enqueueRun(ctx context.Context, pageURL string) (string, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	now := s.clock.Now()
	run := archive.Run{
		ID:        runID,
		URL:       pageURL,
		Prefix:    runID,
		Status:    archive.RunStatusQueued,
		State:     archive.StatePending,
		Submitted: now,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := archive.QueueItem{
		RunID:     runID,
		Request:   archive.Request{URL: pageURL, Prefix: runID},
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		run.Status = archive.RunStatusFailed
		run.ErrorText = err.Error()
		if updateErr := s.runs.UpdateRun(context.WithoutCancel(ctx), run); updateErr != nil {
			s.logger.Warn("mark unqueued run failed", zap.String("run_id", runID), zap.Error(updateErr))
		}
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	return runID, nil
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	backend := storage.WithPrefix(s.backend, r.URL.Query().Get("prefix"))
	names, err := backend.List(r.Context())
	if err != nil {
		s.logger.Error("list objects failed", zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "failed to list objects")
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"names": names})
}

func (s *Server) readObject(w http.ResponseWriter, r *http.Request) {
	name, ok := s.objectName(w, r)
	if !ok {
		return
	}
	data, err := s.backend.Read(r.Context(), name)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "object not found")
			return
		}
		s.logger.Error("read object failed", zap.String("name", name), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "failed to read object")
		return
	}
	w.Header().Set("Content-Type", remote.ContentTypeFor(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Location", s.backend.URLFor(name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write object failed", zap.String("name", name), zap.Error(err))
	}
}

func (s *Server) objectExists(w http.ResponseWriter, r *http.Request) {
	name, ok := s.objectName(w, r)
	if !ok {
		return
	}
	if !s.backend.Exists(r.Context(), name) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Location", s.backend.URLFor(name))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteObject(w http.ResponseWriter, r *http.Request) {
	name, ok := s.objectName(w, r)
	if !ok {
		return
	}
	if err := s.backend.Delete(r.Context(), name); err != nil {
		s.logger.Error("delete object failed", zap.String("name", name), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "failed to delete object")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) objectName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.Trim(chi.URLParam(r, "*"), "/")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "object name required")
		return "", false
	}
	return name, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
