package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tcynic/resonant-sub007/internal/core/domain"
	"github.com/tcynic/resonant-sub007/internal/infra/storage"
)

// Server provides the ops HTTP endpoints.
type Server struct {
	svc    *Service
	server *http.Server
}

// NewServer creates a new ops server.
func NewServer(svc *Service, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		svc: svc,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/queue/status", s.handleQueueStatus)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.breaker.State(r.Context())

	status := "healthy"
	code := http.StatusOK
	switch {
	case err != nil:
		status = "critical"
		code = http.StatusServiceUnavailable
	case state.Status == domain.BreakerOpen:
		status = "degraded"
	case state.Status == domain.BreakerHalfOpen:
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

type detailedHealth struct {
	Breaker    *domain.BreakerState     `json:"breaker,omitempty"`
	Queue      map[domain.JobStatus]int `json:"queue"`
	DeadLetter *domain.DeadLetterStats  `json:"dead_letter"`
	Errors     []string                 `json:"errors,omitempty"`
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report := detailedHealth{}

	state, err := s.svc.breaker.State(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.Breaker = state
	}

	counts, err := s.svc.jobs.CountByStatus(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.Queue = counts
	}

	stats, err := s.svc.dead.Stats(ctx)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.DeadLetter = stats
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// handleQueueStatus answers per-entry status queries: GET ?entry_id=...
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	entryID := r.URL.Query().Get("entry_id")
	if entryID == "" {
		http.Error(w, "entry_id is required", http.StatusBadRequest)
		return
	}

	report, err := s.svc.Status(r.Context(), entryID)
	if errors.Is(err, storage.ErrJobNotFound) {
		http.Error(w, "no job for entry", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
