// Package server implements the HTTP server, middleware, and request handlers for the application.
package server

import (
	"net/http"

	"github.com/woozymasta/a2squery/internal/config"
	"github.com/woozymasta/a2squery/internal/game"
	"github.com/woozymasta/a2squery/internal/storage"
)

// New creates a new Server instance with the provided storage, GeoIP resolver, and configuration.
// geo may be nil.
func New(store *storage.Repository, geo game.CountryResolver, cfg *config.Config) *Server {
	workers := cfg.Server.Workers
	if workers < 1 {
		workers = 1
	}

	return &Server{
		storage:        store,
		geoip:          geo,
		a2sOptions:     cfg.A2S,
		authToken:      cfg.Server.AuthToken,
		maxBody:        cfg.Server.MaxBodySize,
		trustProxy:     cfg.Server.TrustProxy,
		hardLimitCount: cfg.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.RateLimit.HardLimitWin,
		workers:        workers,

		queue:    make(chan snapshotJob, 1000),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers initializes the background worker pool for processing snapshot jobs.
func (s *Server) StartWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// StopWorkers gracefully stops the background workers and closes the job queue.
func (s *Server) StopWorkers() {
	close(s.shutdown)
	close(s.queue)
	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	rateLimit := s.RateLimitMiddleware()
	limited := func(h http.HandlerFunc) http.Handler { return rateLimit(h) }
	admin := func(h http.HandlerFunc) http.Handler { return AdminAuthMiddleware(s.authToken, h) }

	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))
	mux.Handle("GET /api/info", limited(s.handleInfo))
	mux.Handle("GET /api/players", limited(s.handlePlayers))
	mux.Handle("GET /api/rules", limited(s.handleRules))

	mux.Handle("GET /api/servers", admin(s.handleServers))
	mux.Handle("GET /api/server", admin(s.handleGetServer))
	mux.Handle("POST /api/server", admin(s.handleAddServer))
	mux.Handle("DELETE /api/server", admin(s.handleDeleteServer))

	return s.LoggingMiddleware(mux)
}
