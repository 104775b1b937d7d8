package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/internal/metrics"
	"github.com/manash/chronosnap/internal/provider"
	"github.com/manash/chronosnap/pkg/models"
)

const (
	opTransform = "transform"
	opEdit      = "edit"
	opAnalyze   = "analyze"

	analyzeInstruction = "Analyze this image in detail. Describe the historical era depicted, the clothing worn by the subject, the background elements, and the overall mood and lighting."
)

// contentGenerator is the slice of the genai client this package uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Provider struct {
	models        contentGenerator
	imageModel    string
	analysisModel string
	timeout       time.Duration
	logger        zerolog.Logger
}

func New(ctx context.Context, cfg *provider.Config) (*Provider, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}
	c := cfg.WithDefaults()

	cc := &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newWithGenerator(client.Models, c), nil
}

func newWithGenerator(gen contentGenerator, cfg provider.Config) *Provider {
	cfg = cfg.WithDefaults()
	return &Provider{
		models:        gen,
		imageModel:    cfg.ImageModel,
		analysisModel: cfg.AnalysisModel,
		timeout:       cfg.Timeout,
		logger:        log.WithComponent("gemini"),
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

// TransformInstruction wraps an era prompt with the identity-preserving
// directive sent alongside the captured photo.
func TransformInstruction(eraPrompt string) string {
	return fmt.Sprintf("Transform this image. %s Ensure the person's face remains recognizable but adapt their clothing and the background to match the description perfectly. The output should be photorealistic.", strings.TrimSpace(eraPrompt))
}

func (p *Provider) Transform(ctx context.Context, img models.ImagePayload, eraPrompt string) (models.ImagePayload, error) {
	if strings.TrimSpace(eraPrompt) == "" {
		return models.ImagePayload{}, provider.ErrEmptyInstruction
	}
	return p.generateImage(ctx, opTransform, img, TransformInstruction(eraPrompt))
}

func (p *Provider) Edit(ctx context.Context, img models.ImagePayload, instruction string) (models.ImagePayload, error) {
	if strings.TrimSpace(instruction) == "" {
		return models.ImagePayload{}, provider.ErrEmptyInstruction
	}
	return p.generateImage(ctx, opEdit, img, instruction)
}

func (p *Provider) Analyze(ctx context.Context, img models.ImagePayload) (string, error) {
	resp, elapsed, err := p.call(ctx, opAnalyze, p.analysisModel, img, analyzeInstruction)
	if err != nil {
		return "", err
	}

	text, ok := firstText(resp)
	if !ok {
		p.logger.Warn().Str("operation", opAnalyze).Msg("no text in response, using placeholder")
		metrics.RecordGeneration(opAnalyze, "degraded", elapsed)
		return provider.AnalysisPlaceholder, nil
	}
	metrics.RecordGeneration(opAnalyze, "success", elapsed)
	return text, nil
}

func (p *Provider) generateImage(ctx context.Context, op string, img models.ImagePayload, instruction string) (models.ImagePayload, error) {
	resp, elapsed, err := p.call(ctx, op, p.imageModel, img, instruction)
	if err != nil {
		return models.ImagePayload{}, err
	}

	data, ok := firstImage(resp)
	if !ok {
		metrics.RecordGeneration(op, "no_output", elapsed)
		return models.ImagePayload{}, fmt.Errorf("%w: no image generated%s", provider.ErrGenerationFailed, describeEmpty(resp))
	}
	metrics.RecordGeneration(op, "success", elapsed)
	return models.NewImagePayload(models.MimePNG, data), nil
}

// call sends one request. Transport failures are recorded here; callers
// record the outcome once they have inspected the response.
func (p *Provider) call(ctx context.Context, op, model string, img models.ImagePayload, instruction string) (*genai.GenerateContentResponse, time.Duration, error) {
	if err := img.Validate(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", provider.ErrInvalidImage, err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MimeType.String()),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug().
		Str("operation", op).
		Str("model", model).
		Str("mime_type", img.MimeType.String()).
		Int("image_bytes", len(img.Data)).
		Int("instruction_len", len(instruction)).
		Msg("request")

	start := time.Now()
	resp, err := p.models.GenerateContent(callCtx, model, contents, nil)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordGeneration(op, "transport", elapsed)
		p.logger.Error().Err(err).Str("operation", op).Str("model", model).Dur("elapsed", elapsed).Msg("request failed")
		return nil, elapsed, fmt.Errorf("%w: %w", provider.ErrTransport, err)
	}

	evt := p.logger.Info().Str("operation", op).Str("model", model).Dur("elapsed", elapsed)
	if u := resp.UsageMetadata; u != nil {
		evt = evt.Int32("prompt_tokens", u.PromptTokenCount).
			Int32("output_tokens", u.CandidatesTokenCount).
			Int32("total_tokens", u.TotalTokenCount)
	}
	evt.Msg("response")

	return resp, elapsed, nil
}

func firstParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil
	}
	return cand.Content.Parts
}

func firstImage(resp *genai.GenerateContentResponse) ([]byte, bool) {
	for _, part := range firstParts(resp) {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return part.InlineData.Data, true
	}
	return nil, false
}

func firstText(resp *genai.GenerateContentResponse) (string, bool) {
	for _, part := range firstParts(resp) {
		if part == nil || part.Thought || strings.TrimSpace(part.Text) == "" {
			continue
		}
		return part.Text, true
	}
	return "", false
}

// describeEmpty explains an imageless response when the service says why.
func describeEmpty(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return fmt.Sprintf(" (prompt blocked: %s)", fb.BlockReason)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil && resp.Candidates[0].FinishReason != "" {
		return fmt.Sprintf(" (finish reason: %s)", resp.Candidates[0].FinishReason)
	}
	return ""
}
