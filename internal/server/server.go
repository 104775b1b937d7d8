// Package server exposes booth sessions over HTTP: JSON intents, a
// server-sent event stream of snapshots and a websocket camera feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/pkg/models"
)

const (
	DefaultListenAddr = ":8080"
	DefaultRateLimit  = 60

	shutdownTimeout = 10 * time.Second
	keepAlive       = 15 * time.Second
)

// Config holds the server settings.
type Config struct {
	ListenAddr string
	// RateLimit is the number of mutating requests allowed per IP per
	// minute. Zero or less disables limiting.
	RateLimit int
}

type Server struct {
	cfg      Config
	registry *booth.Registry
	catalog  *models.Catalog
	router   chi.Router
	logger   zerolog.Logger

	// closing is closed when shutdown starts; long-lived streams watch it.
	closing   chan struct{}
	closeOnce sync.Once
}

// New builds the router. A nil catalog uses the default eras.
func New(cfg Config, registry *booth.Registry, catalog *models.Catalog) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		catalog:  catalog,
		logger:   log.WithComponent("server"),
		closing:  make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware())
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/eras", s.handleEras)

		r.With(s.rateLimit()).Post("/sessions", s.handleCreateSession)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/events", s.handleEvents)
			r.Get("/camera", s.handleCamera)
			r.Get("/download", s.handleDownload)

			r.Group(func(r chi.Router) {
				r.Use(s.rateLimit())
				r.Post("/capture/start", s.handleStartCapture)
				r.Post("/capture/snap", s.handleSnap)
				r.Post("/capture/upload", s.handleUpload)
				r.Post("/capture/cancel", s.handleCancel)
				r.Post("/era", s.handleChooseEra)
				r.Post("/back", s.handleBack)
				r.Post("/edit", s.handleEdit)
				r.Post("/analyze", s.handleAnalyze)
				r.Post("/reset", s.handleReset)
			})
		})
	})

	return r
}

// rateLimit limits mutating requests per client IP with a sliding window.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.cfg.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := time.Minute
	return httprate.Limit(
		s.cfg.RateLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeErrorCode(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
		}),
	)
}

func (s *Server) newHTTPServer() *http.Server {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeStreams)
	return srv
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully. In-flight intents are allowed to finish; event
// streams and camera feeds are closed.
func (s *Server) Run(ctx context.Context) error {
	srv := s.newHTTPServer()
	return s.serve(ctx, srv, srv.ListenAndServe)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.newHTTPServer()
	srv.Addr = ln.Addr().String()
	return s.serve(ctx, srv, func() error { return srv.Serve(ln) })
}

func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) serve(ctx context.Context, srv *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- listen()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
