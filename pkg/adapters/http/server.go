// Package http exposes a small monitoring surface over the run store: run
// status, the public-clone report, health, and process metrics. It is a
// headless API for host processes, not a user interface.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

// RunStore is the read side the handler needs.
type RunStore interface {
	LoadStatus(ctx context.Context, runID string) (domain.RunStatus, error)
	LoadReport(ctx context.Context, runID string) ([]byte, error)
}

// NewHandler builds the router.
func NewHandler(store RunStore, logger *slog.Logger) http.Handler {
	s := &server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/runs/{id}", s.getStatus)
	r.Get("/runs/{id}/report", s.getReport)
	return r
}

type server struct {
	store  RunStore
	logger *slog.Logger
}

func (s *server) getStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	status, err := s.store.LoadStatus(r.Context(), runID)
	if err != nil {
		s.writeError(w, runID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("encoding status response", "err", err, "run_id", runID)
	}
}

func (s *server) getReport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	report, err := s.store.LoadReport(r.Context(), runID)
	if err != nil {
		s.writeError(w, runID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(report)
}

func (s *server) writeError(w http.ResponseWriter, runID string, err error) {
	if errors.Is(err, domain.ErrRunNotFound) {
		http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
		return
	}
	s.logger.Error("run store read failed", "err", err, "run_id", runID)
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}
