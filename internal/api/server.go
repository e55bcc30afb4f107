// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the viewer lifecycle and quality transitions over HTTP
// and streams viewer events over WebSocket.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/streamctl/internal/api/middleware"
	"github.com/ManuGH/streamctl/internal/bus"
	"github.com/ManuGH/streamctl/internal/health"
	xglog "github.com/ManuGH/streamctl/internal/log"
	"github.com/ManuGH/streamctl/internal/viewer"
)

// healthChecker is implemented by buses that can report their health.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config configures the HTTP surface.
type Config struct {
	Version           string
	TracingService    string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// EventPingInterval is the WebSocket keepalive period.
	EventPingInterval time.Duration
}

// Server wires handlers to the viewer manager and event bus.
type Server struct {
	cfg      Config
	viewers  *viewer.Manager
	events   bus.Bus
	health   *health.Manager
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	router   chi.Router
}

// New creates a Server. events may be nil, which disables the event stream.
func New(cfg Config, viewers *viewer.Manager, events bus.Bus, logger zerolog.Logger) *Server {
	if cfg.EventPingInterval <= 0 {
		cfg.EventPingInterval = 30 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		viewers: viewers,
		events:  events,
		health:  health.NewManager(cfg.Version),
		logger:  logger.With().Str(xglog.FieldComponent, "api").Logger(),
	}
	if hc, ok := events.(healthChecker); ok {
		s.health.RegisterChecker(health.NewFuncChecker("bus", hc.HealthCheck))
	}
	s.health.SetDetails(func() map[string]any {
		return map[string]any{"viewers": viewers.Count()}
	})
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.router = s.routes()
	return s
}

// RegisterHealthCheck adds a dependency to the readiness probe.
func (s *Server) RegisterHealthCheck(c health.Checker) {
	s.health.RegisterChecker(c)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins:    s.cfg.AllowedOrigins,
		EnableMetrics:     true,
		TracingService:    s.cfg.TracingService,
		EnableLogging:     true,
		RateLimitRequests: s.cfg.RateLimitRequests,
		RateLimitWindow:   s.cfg.RateLimitWindow,
	})

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/viewers", s.handleListViewers)
		r.Route("/hosts/{host}/devices/{device}/viewer", func(r chi.Router) {
			r.Put("/", s.handleMount)
			r.Get("/", s.handleGetViewer)
			r.Delete("/", s.handleUnmount)
			r.Post("/quality", s.handleRequestQuality)
			r.Post("/player-ready", s.handlePlayerReady)
			r.Get("/events", s.handleEvents)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})
	return r
}

// checkOrigin accepts same-origin requests, requests without Origin and the
// configured allowed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
