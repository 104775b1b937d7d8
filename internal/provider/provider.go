package provider

import (
	"context"
	"errors"
	"time"

	"github.com/manash/chronosnap/pkg/models"
)

var (
	ErrAPIKeyRequired   = errors.New("API key is required")
	ErrGenerationFailed = errors.New("image generation failed")
	ErrTransport        = errors.New("generation service request failed")
	ErrInvalidImage     = errors.New("invalid input image")
	ErrEmptyInstruction = errors.New("instruction cannot be empty")
)

const (
	DefaultImageModel    = "gemini-2.5-flash-image"
	DefaultAnalysisModel = "gemini-3-pro-preview"
	DefaultTimeout       = 120 * time.Second

	// AnalysisPlaceholder is returned by Analyze when the service answers
	// without any text.
	AnalysisPlaceholder = "Could not analyze image."
)

// Provider is the generation service boundary. Transform and Edit return
// exactly one image or fail with ErrGenerationFailed; Analyze degrades to
// AnalysisPlaceholder instead of failing when no text comes back.
type Provider interface {
	Name() string
	Transform(ctx context.Context, img models.ImagePayload, eraPrompt string) (models.ImagePayload, error)
	Edit(ctx context.Context, img models.ImagePayload, instruction string) (models.ImagePayload, error)
	Analyze(ctx context.Context, img models.ImagePayload) (string, error)
}

type Config struct {
	APIKey        string
	BaseURL       string
	ImageModel    string
	AnalysisModel string
	Timeout       time.Duration
}

// WithDefaults returns a copy with empty model and timeout fields filled in.
func (c Config) WithDefaults() Config {
	if c.ImageModel == "" {
		c.ImageModel = DefaultImageModel
	}
	if c.AnalysisModel == "" {
		c.AnalysisModel = DefaultAnalysisModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
