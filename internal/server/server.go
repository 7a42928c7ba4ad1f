// Package server exposes the guidevault commands over a JSON HTTP API:
// REST routes for the common operations and POST /api/rpc/{command} for
// every command by name.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/guidevault/internal/jobs"
	"github.com/voyagen/guidevault/internal/metrics"
	"github.com/voyagen/guidevault/internal/scheduler"
	"github.com/voyagen/guidevault/internal/service"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Options holds the server's dependencies.
type Options struct {
	Engine    *service.Engine
	Scheduler *scheduler.Service
	Jobs      *jobs.Runner
	Log       *logrus.Entry
	Port      string
	// Checks run on GET /api/health in addition to the store ping.
	Checks map[string]HealthCheck
}

// Server holds dependencies for the HTTP API.
type Server struct {
	engine   *service.Engine
	sched    *scheduler.Service
	jobs     *jobs.Runner
	log      *logrus.Entry
	port     string
	checks   map[string]HealthCheck
	mux      *http.ServeMux
	commands map[string]command
}

// New creates a Server and registers routes.
func New(opts Options) *Server {
	s := &Server{
		engine: opts.Engine,
		sched:  opts.Scheduler,
		jobs:   opts.Jobs,
		log:    opts.Log,
		port:   opts.Port,
		checks: opts.Checks,
		mux:    http.NewServeMux(),
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "http")
	if s.port == "" {
		s.port = "8080"
	}
	s.commands = s.commandTable()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Sources
	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("POST /api/sources", s.handleAddSource)
	s.mux.HandleFunc("POST /api/sources/refresh", s.handleRefreshAll)
	s.mux.HandleFunc("GET /api/sources/{id}", s.handleGetSource)
	s.mux.HandleFunc("PATCH /api/sources/{id}", s.handleUpdateSource)
	s.mux.HandleFunc("DELETE /api/sources/{id}", s.handleDeleteSource)
	s.mux.HandleFunc("POST /api/sources/{id}/refresh", s.handleRefreshSource)
	s.mux.HandleFunc("GET /api/sources/{id}/stats", s.handleSourceStats)

	// Channels and mappings
	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("GET /api/channels/lineup", s.handleLineup)
	s.mux.HandleFunc("POST /api/channels/{id}/toggle", s.handleToggleChannel)
	s.mux.HandleFunc("PUT /api/channels/{id}/order", s.handleSetDisplayOrder)
	s.mux.HandleFunc("DELETE /api/channels/{id}", s.handleDeleteChannel)
	s.mux.HandleFunc("GET /api/channels/{id}/programs", s.handleChannelPrograms)
	s.mux.HandleFunc("GET /api/channels/{id}/mappings", s.handleChannelMappings)
	s.mux.HandleFunc("POST /api/channels/{id}/mappings", s.handleAddMapping)
	s.mux.HandleFunc("PUT /api/channels/{id}/primary", s.handleSetPrimary)
	s.mux.HandleFunc("DELETE /api/mappings/{id}", s.handleRemoveMapping)

	// Catalog
	s.mux.HandleFunc("GET /api/streams", s.handleListStreams)
	s.mux.HandleFunc("GET /api/streams/search", s.handleSearchStreams)
	s.mux.HandleFunc("GET /api/streams/{id}", s.handleGetStream)
	s.mux.HandleFunc("POST /api/streams/{id}/unlink", s.handleUnlinkStream)
	s.mux.HandleFunc("POST /api/streams/{id}/promote", s.handlePromoteStream)
	s.mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	s.mux.HandleFunc("POST /api/accounts/{id}/scan", s.handleScanAccount)

	// Schedule and jobs
	s.mux.HandleFunc("GET /api/schedule", s.handleGetSchedule)
	s.mux.HandleFunc("PUT /api/schedule", s.handleSetSchedule)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	s.mux.HandleFunc("POST /api/rpc/{command}", s.handleRPC)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the API wrapped in its middleware.
func (s *Server) Handler() http.Handler {
	return withCORS(s.withLogging(s))
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.port
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("server shutdown")
		}
	}()

	s.log.WithField("addr", addr).Info("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	healthy := true
	if err := s.engine.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		healthy = false
	}
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checks[name] = "ok"
		if err := s.checks[name](ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		}
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}
