// Package server is the thin read-oriented HTTP adapter exposing
// persisted prices, the bidding zone registry, and admin fetch/backfill
// triggers. It carries no authentication: per the ingestion design, the
// read endpoints are intentionally unauthenticated.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/entsoeprices/dayahead/pkg/backfill"
	"github.com/entsoeprices/dayahead/pkg/log"
	"github.com/entsoeprices/dayahead/pkg/orchestrator"
	"github.com/entsoeprices/dayahead/pkg/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server handles the HTTP API for the ingestion service: health/readiness,
// metrics, read-only price/zone queries, and admin fetch/backfill triggers.
type Server struct {
	repo         repository.Repository
	orchestrator *orchestrator.Orchestrator
	backfill     *backfill.Engine
	registry     *prometheus.Registry

	listenAddr string
	httpServer *http.Server
	serverName string
}

// Config carries the Server's construction parameters.
type Config struct {
	ListenAddr string
	ServerName string
}

// New constructs a Server.
func New(cfg Config, repo repository.Repository, orch *orchestrator.Orchestrator, bf *backfill.Engine, registry *prometheus.Registry) *Server {
	return &Server{
		repo:         repo,
		orchestrator: orch,
		backfill:     bf,
		registry:     registry,
		listenAddr:   cfg.ListenAddr,
		serverName:   cfg.ServerName,
	}
}

func (s *Server) setupHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/prices/zone/{zone}", s.handlePricesByZone)
	mux.HandleFunc("GET /api/v1/prices/country/{country}", s.handlePricesByCountry)
	mux.HandleFunc("GET /api/v1/prices/latest", s.handleLatestPrices)
	mux.HandleFunc("GET /api/v1/zones", s.handleZones)
	mux.HandleFunc("GET /api/v1/countries", s.handleCountries)

	mux.HandleFunc("POST /api/v1/admin/fetch", s.handleAdminFetch)
	mux.HandleFunc("POST /api/v1/admin/backfill", s.handleAdminBackfill)

	return s.revisionMiddleware(mux)
}

// Run starts the HTTP server and blocks until the context is canceled or
// an error occurs, shutting down gracefully on cancellation.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", "addr", s.listenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// errorResponse is the JSON envelope every non-2xx response carries.
type errorResponse struct {
	Error         string `json:"error"`
	Code          int    `json:"code"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := errorResponse{
		Error:         msg,
		Code:          code,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Ctx(r.Context()).WarnContext(r.Context(), "failed to write error response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

// classifyRepoError maps a repository error to an HTTP status code, per
// the ingestion design's error-handling taxonomy.
func classifyRepoError(err error) int {
	var notFound *repository.NotFound
	var invalidInput *repository.InvalidInput
	var poolErr *repository.PoolError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &poolErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &invalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSONError(w, r, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
