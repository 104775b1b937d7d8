// Package config resolves chronosnap settings from defaults, an optional YAML
// file, a .env file, environment variables and command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/manash/chronosnap/internal/keys"
	"github.com/manash/chronosnap/internal/provider"
)

var (
	ErrMissingAPIKey = errors.New("API key is required")
	ErrInvalidConfig = errors.New("invalid configuration")
)

const (
	DefaultListenAddr           = ":8080"
	DefaultSessionTTL           = 30 * time.Minute
	DefaultCameraAcquireTimeout = 10 * time.Second
	DefaultRateLimit            = 60
	DefaultRequestTimeout       = provider.DefaultTimeout
)

type Config struct {
	APIKey               string        `yaml:"api_key"`
	BaseURL              string        `yaml:"base_url"`
	ImageModel           string        `yaml:"image_model"`
	AnalysisModel        string        `yaml:"analysis_model"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	ListenAddr           string        `yaml:"listen"`
	LogLevel             string        `yaml:"log_level"`
	SessionTTL           time.Duration `yaml:"session_ttl"`
	CameraAcquireTimeout time.Duration `yaml:"camera_acquire_timeout"`
	RateLimit            int           `yaml:"rate_limit"`
	OutputDir            string        `yaml:"output_dir"`

	// APIKeySource describes where APIKey was found. Not read from files.
	APIKeySource string `yaml:"-"`
}

func Defaults() Config {
	return Config{
		ImageModel:           provider.DefaultImageModel,
		AnalysisModel:        provider.DefaultAnalysisModel,
		RequestTimeout:       DefaultRequestTimeout,
		ListenAddr:           DefaultListenAddr,
		LogLevel:             "info",
		SessionTTL:           DefaultSessionTTL,
		CameraAcquireTimeout: DefaultCameraAcquireTimeout,
		RateLimit:            DefaultRateLimit,
		OutputDir:            ".",
	}
}

// Options control a Load call.
type Options struct {
	// File is an optional YAML config file.
	File string
	// EnvFile defaults to ".env". A missing file is ignored.
	EnvFile string
	// Overrides carries values from flags; non-zero fields win.
	Overrides Config
	// Keys is the key store consulted for the API key. Nil uses the
	// default store.
	Keys *keys.Store
}

// Load layers the configuration sources. The API key is resolved last
// through the key store: explicit value (file or flag), stored key, then
// GEMINI_API_KEY or API_KEY. A missing key is not an error here; callers
// that need one call Validate(true).
func Load(opts Options) (Config, error) {
	cfg := Defaults()

	if opts.File != "" {
		if err := loadFile(opts.File, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envFile, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyOverrides(&cfg, opts.Overrides)

	store := opts.Keys
	if store == nil {
		if s, err := keys.NewStore(); err == nil {
			store = s
		}
	}
	if key, source, err := store.Resolve(cfg.APIKey, keys.DefaultProvider, keys.DefaultEnvVars...); err == nil {
		cfg.APIKey = key
		cfg.APIKeySource = source
	}

	return cfg, nil
}

// loadFile decodes a YAML file strictly; unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.BaseURL = getEnv("CHRONOSNAP_BASE_URL", cfg.BaseURL)
	cfg.ImageModel = getEnv("CHRONOSNAP_IMAGE_MODEL", cfg.ImageModel)
	cfg.AnalysisModel = getEnv("CHRONOSNAP_ANALYSIS_MODEL", cfg.AnalysisModel)
	cfg.ListenAddr = getEnv("CHRONOSNAP_LISTEN", cfg.ListenAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.OutputDir = getEnv("CHRONOSNAP_OUTPUT_DIR", cfg.OutputDir)

	var err error
	if cfg.RequestTimeout, err = getEnvAsDuration("CHRONOSNAP_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return err
	}
	if cfg.SessionTTL, err = getEnvAsDuration("CHRONOSNAP_SESSION_TTL", cfg.SessionTTL); err != nil {
		return err
	}
	if cfg.CameraAcquireTimeout, err = getEnvAsDuration("CHRONOSNAP_CAMERA_TIMEOUT", cfg.CameraAcquireTimeout); err != nil {
		return err
	}
	if cfg.RateLimit, err = getEnvAsInt("CHRONOSNAP_RATE_LIMIT", cfg.RateLimit); err != nil {
		return err
	}
	return nil
}

func applyOverrides(cfg *Config, o Config) {
	if o.APIKey != "" {
		cfg.APIKey = o.APIKey
	}
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.ImageModel != "" {
		cfg.ImageModel = o.ImageModel
	}
	if o.AnalysisModel != "" {
		cfg.AnalysisModel = o.AnalysisModel
	}
	if o.RequestTimeout != 0 {
		cfg.RequestTimeout = o.RequestTimeout
	}
	if o.ListenAddr != "" {
		cfg.ListenAddr = o.ListenAddr
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.SessionTTL != 0 {
		cfg.SessionTTL = o.SessionTTL
	}
	if o.CameraAcquireTimeout != 0 {
		cfg.CameraAcquireTimeout = o.CameraAcquireTimeout
	}
	if o.RateLimit != 0 {
		cfg.RateLimit = o.RateLimit
	}
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
}

// Validate checks the resolved values. requireKey is set by commands that
// call the generation service.
func (c Config) Validate(requireKey bool) error {
	if requireKey && strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: run 'chronosnap keys set' or set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive, got %s", ErrInvalidConfig, c.RequestTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("%w: session ttl must be positive, got %s", ErrInvalidConfig, c.SessionTTL)
	}
	if c.CameraAcquireTimeout <= 0 {
		return fmt.Errorf("%w: camera timeout must be positive, got %s", ErrInvalidConfig, c.CameraAcquireTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidConfig)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen address is required", ErrInvalidConfig)
	}
	return nil
}

// Provider returns the generation client settings.
func (c Config) Provider() provider.Config {
	return provider.Config{
		APIKey:        c.APIKey,
		BaseURL:       c.BaseURL,
		ImageModel:    c.ImageModel,
		AnalysisModel: c.AnalysisModel,
		Timeout:       c.RequestTimeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, raw)
	}
	return v, nil
}

// getEnvAsDuration accepts Go durations ("90s", "2m") or whole seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a duration", ErrInvalidConfig, key, raw)
	}
	return d, nil
}
