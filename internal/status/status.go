// Package status exposes a small localhost HTTP surface for observing
// the poll loop. It is operational tooling, not a product API.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/go-spotify-group-queue/internal/engine"
)

// rateReporter is the slice of the platform client the status page needs.
type rateReporter interface {
	RateLimited() bool
}

// Server serves the status endpoints.
type Server struct {
	server   *http.Server
	poller   *engine.Poller
	platform rateReporter
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, poller *engine.Poller, platform rateReporter) *Server {
	s := &Server{
		poller:   poller,
		platform: platform,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", s.handleHealth)
	router.Get("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start starts the HTTP server and blocks until it shuts down.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := struct {
		engine.PollerStatus
		RateLimited bool `json:"rate_limited"`
	}{
		PollerStatus: s.poller.Status(),
		RateLimited:  s.platform.RateLimited(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
