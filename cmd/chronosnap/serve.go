package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/internal/server"
)

var (
	flagListen    string
	flagRateLimit int
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web booth API",
		Long: `Serve the booth over HTTP. Each browser creates a session, streams its
webcam to /api/sessions/{id}/camera and drives the wizard with JSON intents.
Session snapshots are pushed on /api/sessions/{id}/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, app)
		},
	}

	cmd.Flags().StringVar(&flagListen, "listen", "", "listen address (default :8080)")
	cmd.Flags().IntVar(&flagRateLimit, "rate-limit", -1, "mutating requests per minute per IP, 0 disables")

	return cmd
}

// sweepInterval is how often idle sessions are looked for.
func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}

func runServe(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(app, true)
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.ListenAddr = flagListen
	}
	if flagRateLimit >= 0 {
		cfg.RateLimit = flagRateLimit
	}

	prov, err := newProvider(ctx, app, cfg)
	if err != nil {
		return err
	}

	registry := booth.NewRegistry(func(id string) *booth.Controller {
		feed := capture.NewFeed(cfg.CameraAcquireTimeout)
		return booth.NewController(id, prov, app.Catalog, capture.NewCapturer(feed))
	})
	defer registry.Close()

	srv := server.New(server.Config{
		ListenAddr: cfg.ListenAddr,
		RateLimit:  cfg.RateLimit,
	}, registry, app.Catalog)

	ln, err := app.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}

	logger := log.WithComponent("serve")
	logger.Info().
		Str("addr", ln.Addr().String()).
		Dur("session_ttl", cfg.SessionTTL).
		Int("rate_limit", cfg.RateLimit).
		Msg("chronosnap booth starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		return registry.Run(gctx, sweepInterval(cfg.SessionTTL), cfg.SessionTTL)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}
