package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/manash/chronosnap/internal/batch"
	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/config"
	"github.com/manash/chronosnap/internal/image"
	"github.com/manash/chronosnap/internal/provider"
	"github.com/manash/chronosnap/internal/security"
	"github.com/manash/chronosnap/pkg/models"
)

var (
	flagEra         string
	flagEras        string
	flagErasFile    string
	flagOutput      string
	flagShow        bool
	flagParallel    int
	flagStopOnError bool
)

func newErasCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "eras",
		Short: "List the available eras",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for i, era := range app.Catalog.List() {
				fmt.Fprintf(app.Out, "%2d. %-18s %s %s\n", i+1, era.ID, era.Icon, era.Name)
				fmt.Fprintf(app.Out, "    %s\n", era.Description)
			}
			return nil
		},
	}
}

func newTransformCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transform <image>",
		Short: "Send a photo to another era",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransform(cmd, args, app)
		},
	}
	cmd.Flags().StringVarP(&flagEra, "era", "e", "", "era id (see 'chronosnap eras')")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output filename")
	cmd.Flags().BoolVar(&flagShow, "show", false, "display the result in the terminal")
	_ = cmd.MarkFlagRequired("era")
	return cmd
}

func newTourCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tour <image>",
		Short: "Send a photo to several eras at once",
		Long: `Transform one photo into several eras. Pick eras with --eras (comma
separated ids, or "all") or --file (a .txt file with one id per line, or a
.json array of ids). Results are written to --output-dir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTour(cmd, args, app)
		},
	}
	cmd.Flags().StringVar(&flagEras, "eras", batch.AllEras, "comma separated era ids, or \"all\"")
	cmd.Flags().StringVarP(&flagErasFile, "file", "f", "", "file listing era ids")
	cmd.Flags().IntVarP(&flagParallel, "parallel", "p", 1, "concurrent transforms")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "stop at the first failure")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <image> <instruction>",
		Short: "Edit a photo with a text instruction",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, args, app)
		},
	}
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output filename")
	cmd.Flags().BoolVar(&flagShow, "show", false, "display the result in the terminal")
	return cmd
}

func newAnalyzeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <image>",
		Short: "Describe a photo as a historian would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args, app)
		},
	}
}

// setup loads config and a provider for a one-shot command and reads the
// input image.
func setup(ctx context.Context, app *App, path string) (config.Config, provider.Provider, models.ImagePayload, error) {
	cfg, err := loadConfig(app, true)
	if err != nil {
		return cfg, nil, models.ImagePayload{}, err
	}

	img, err := readImage(path)
	if err != nil {
		return cfg, nil, models.ImagePayload{}, err
	}

	prov, err := newProvider(ctx, app, cfg)
	if err != nil {
		return cfg, nil, models.ImagePayload{}, err
	}
	return cfg, prov, img, nil
}

func readImage(path string) (models.ImagePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("failed to read image: %w", err)
	}
	img, err := capture.DecodeUpload(data, path)
	if err != nil {
		return models.ImagePayload{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// outputPath returns the -o name inside the output directory, or a
// timestamped name when -o is not set.
func outputPath(cfg config.Config, label string) (string, error) {
	if flagOutput != "" {
		return security.ResolveSavePath(cfg.OutputDir, flagOutput)
	}
	return filepath.Join(cfg.OutputDir, image.DownloadFilename(label, time.Now())), nil
}

func save(ctx context.Context, app *App, cfg config.Config, img models.ImagePayload, label, caption string) error {
	path, err := outputPath(cfg, label)
	if err != nil {
		return err
	}
	if err := app.NewSaver().Save(ctx, img, path); err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Saved: %s\n", path)

	if flagShow {
		if err := app.NewDisplayer(app.Out).Show(caption, img); err != nil {
			fmt.Fprintf(app.Err, "Warning: failed to display image: %v\n", err)
		}
	}
	return nil
}

func runTransform(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	era, ok := app.Catalog.Get(flagEra)
	if !ok {
		return fmt.Errorf("unknown era %q: available eras: %s", flagEra, strings.Join(app.Catalog.IDs(), ", "))
	}

	cfg, prov, img, err := setup(ctx, app, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Traveling to %s...\n", era.Name)
	result, err := prov.Transform(ctx, img, era.Prompt)
	if err != nil {
		return fmt.Errorf("transform failed: %w", err)
	}
	return save(ctx, app, cfg, result, era.ID, era.Name)
}

func runTour(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var items []batch.Item
	var err error
	if flagErasFile != "" {
		items, err = batch.ParseFile(flagErasFile, app.Catalog)
	} else {
		items, err = batch.ParseList(flagEras, app.Catalog)
	}
	if err != nil {
		return err
	}

	cfg, prov, img, err := setup(ctx, app, args[0])
	if err != nil {
		return err
	}

	proc := batch.NewProcessor(prov, app.NewSaver(), app.Out, app.Err)
	results, err := proc.Process(ctx, img, items, &batch.Options{
		OutputDir:   cfg.OutputDir,
		Parallel:    flagParallel,
		StopOnError: flagStopOnError,
	})
	proc.PrintSummary(results)
	return err
}

func runEdit(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	instruction := strings.Join(args[1:], " ")
	if strings.TrimSpace(instruction) == "" {
		return provider.ErrEmptyInstruction
	}

	cfg, prov, img, err := setup(ctx, app, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(app.Out, "Editing...")
	result, err := prov.Edit(ctx, img, instruction)
	if err != nil {
		return fmt.Errorf("edit failed: %w", err)
	}
	return save(ctx, app, cfg, result, "edit", instruction)
}

func runAnalyze(cmd *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, prov, img, err := setup(ctx, app, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(app.Err, "Consulting the archives...")
	text, err := prov.Analyze(ctx, img)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		text = provider.AnalysisPlaceholder
	}
	fmt.Fprintln(app.Out, text)
	return nil
}
