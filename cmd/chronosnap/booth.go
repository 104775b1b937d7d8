package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/repl"
)

func newBoothCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "booth",
		Short: "Run the booth in the terminal",
		Long: `Walk through the booth interactively: upload a photo, pick an era,
then edit, analyze or save the result. Results are shown inline on
terminals that support the kitty graphics protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBooth(cmd, app)
		},
	}
}

func runBooth(cmd *cobra.Command, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(app, true)
	if err != nil {
		return err
	}
	prov, err := newProvider(ctx, app, cfg)
	if err != nil {
		return err
	}

	// No camera in a terminal: capture always falls back to upload.
	ctrl := booth.NewController(uuid.New().String(), prov, app.Catalog, capture.NewCapturer(nil))
	defer ctrl.Close()

	r := repl.New(&repl.Config{
		In:         app.In,
		Out:        app.Out,
		Err:        app.Err,
		Controller: ctrl,
		Displayer:  app.NewDisplayer(app.Out),
		Saver:      app.NewSaver(),
		OutputDir:  cfg.OutputDir,
	})
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("booth: %w", err)
	}
	return nil
}
