package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/manash/chronosnap/internal/config"
	"github.com/manash/chronosnap/internal/display"
	"github.com/manash/chronosnap/internal/image"
	"github.com/manash/chronosnap/internal/keys"
	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/internal/provider"
	"github.com/manash/chronosnap/internal/provider/gemini"
	"github.com/manash/chronosnap/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagConfig    string
	flagAPIKey    string
	flagLogLevel  string
	flagVerbose   bool
	flagOutputDir string
)

type App struct {
	In           io.Reader
	Out          io.Writer
	Err          io.Writer
	Catalog      *models.Catalog
	NewKeyStore  func() (*keys.Store, error)
	NewProvider  func(ctx context.Context, cfg *provider.Config) (provider.Provider, error)
	NewSaver     func() *image.Saver
	NewDisplayer func(out io.Writer) *display.Displayer
	Listen       func(network, addr string) (net.Listener, error)
}

func DefaultApp() *App {
	return &App{
		In:          os.Stdin,
		Out:         os.Stdout,
		Err:         os.Stderr,
		Catalog:     models.DefaultCatalog(),
		NewKeyStore: keys.NewStore,
		NewProvider: func(ctx context.Context, cfg *provider.Config) (provider.Provider, error) {
			return gemini.New(ctx, cfg)
		},
		NewSaver:     image.NewSaver,
		NewDisplayer: display.New,
		Listen:       net.Listen,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chronosnap",
		Short: "Time-travel photo booth powered by Gemini",
		Long: `chronosnap turns a selfie into a portrait from another era.

Run the web booth with 'chronosnap serve', the terminal booth with
'chronosnap booth', or transform a single photo from the command line.

Examples:
  chronosnap serve --listen :8080
  chronosnap booth
  chronosnap transform me.jpg --era wild-west -o cowboy.png
  chronosnap tour me.jpg --eras all --parallel 3
  chronosnap edit cowboy.png "add a sheriff badge"
  chronosnap analyze cowboy.png`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			configureLogging(app)
		},
	}

	cmd.SetIn(app.In)
	cmd.SetOut(app.Out)
	cmd.SetErr(app.Err)

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Gemini API key (defaults to stored key, then GEMINI_API_KEY)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&flagOutputDir, "output-dir", "", "directory for saved results")

	cmd.AddCommand(
		newServeCmd(app),
		newBoothCmd(app),
		newErasCmd(app),
		newTransformCmd(app),
		newTourCmd(app),
		newEditCmd(app),
		newAnalyzeCmd(app),
		newKeysCmd(app),
	)

	return cmd
}

func logLevel() string {
	if flagVerbose {
		return "debug"
	}
	return flagLogLevel
}

func configureLogging(app *App) {
	log.Configure(log.Config{
		Level:   logLevel(),
		Output:  app.Err,
		Console: display.IsTerminal(app.Err),
	})
}

// loadConfig resolves settings for a command. requireKey is set by commands
// that call the generation service.
func loadConfig(app *App, requireKey bool) (config.Config, error) {
	store, err := app.NewKeyStore()
	if err != nil {
		store = nil
	}

	cfg, err := config.Load(config.Options{
		File: flagConfig,
		Overrides: config.Config{
			APIKey:    flagAPIKey,
			LogLevel:  logLevel(),
			OutputDir: flagOutputDir,
		},
		Keys: store,
	})
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(requireKey); err != nil {
		return cfg, err
	}

	// the config file may set a level the flags did not
	if logLevel() == "" && cfg.LogLevel != "" {
		log.Configure(log.Config{
			Level:   cfg.LogLevel,
			Output:  app.Err,
			Console: display.IsTerminal(app.Err),
		})
	}
	return cfg, nil
}

func newProvider(ctx context.Context, app *App, cfg config.Config) (provider.Provider, error) {
	pcfg := cfg.Provider()
	prov, err := app.NewProvider(ctx, &pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	l := log.WithComponent("cli")
	l.Debug().
		Str("provider", prov.Name()).
		Str("key", keys.MaskKey(cfg.APIKey)).
		Str("key_source", cfg.APIKeySource).
		Msg("provider ready")
	return prov, nil
}
