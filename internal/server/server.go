// Package server exposes the reconciled view and command surface to local
// dashboard consumers over HTTP. Commands proxy to the automation backend
// and feed successful results back into local state; command failures come
// back as inline JSON errors scoped to the acting control, never as a wiped
// view.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/autoapply/syncbridge/internal/core/ports"
	"github.com/autoapply/syncbridge/internal/session"
	"github.com/autoapply/syncbridge/internal/view"
)

const requestTimeout = 30 * time.Second

// Resolver is the slice of reconciler behavior the command surface needs:
// feeding a confirmed resolution back into local state.
type Resolver interface {
	MarkResolved(id, action string)
}

// Refresher requests a fresh snapshot over the live channel.
type Refresher interface {
	Refresh()
}

// Options wires the server's collaborators.
type Options struct {
	Port    int
	Adapter *view.Adapter
	Client  ports.BackendClient
	Tracker *session.Tracker

	Resolver   Resolver
	Connection ports.ConnectionSource
	Channel    Refresher

	Logger *slog.Logger
}

// Server is the local view/command HTTP server.
type Server struct {
	opts   Options
	logger *slog.Logger
	server *http.Server
}

// New creates the Server and its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(requestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "syncbridge")
	})

	r.Get("/api/view", s.handleView)
	r.Get("/api/view/interventions", s.handleViewInterventions)
	r.Get("/api/view/sessions", s.handleViewSessions)
	r.Post("/api/refresh", s.handleRefresh)

	r.Post("/api/interventions/{id}/resolve", s.handleResolve)

	r.Get("/api/sessions/{id}", s.handleSessionDetail)
	r.Post("/api/sessions/{id}/resume", s.handleResume)
	r.Post("/api/sessions/{id}/pause", s.handlePause)
	r.Post("/api/sessions/{id}/mark-applied", s.handleMarkApplied)
	r.Delete("/api/sessions/{id}", s.handleDelete)

	r.Post("/api/applications/start", s.handleStart)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      r,
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("view server listening", slog.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("view server error", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
