package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"identity-forge/internal/portrait"
)

type SDKOptions struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// SDKClient implements the same contract as Client on top of google.golang.org/genai.
type SDKClient struct {
	models *genai.Models
	model  string
	logger *slog.Logger
}

func NewSDK(ctx context.Context, opts SDKOptions) (*SDKClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}

	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" && base != DefaultBaseURL {
		cfg.HTTPOptions.BaseURL = strings.TrimRight(base, "/") + "/"
	}
	if v := strings.TrimSpace(opts.APIVersion); v != "" {
		cfg.HTTPOptions.APIVersion = v
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &SDKClient{
		models: client.Models,
		model:  model,
		logger: logger,
	}, nil
}

func (c *SDKClient) GenerateImage(ctx context.Context, prompt string, input portrait.Image) (portrait.Image, error) {
	if input.Empty() {
		return portrait.Image{}, errors.New("input image is empty")
	}

	mimeType := input.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(input.Data, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return portrait.Image{}, fmt.Errorf("genai generate content: %w", err)
	}

	c.logger.DebugContext(ctx, "genai response", "model", c.model, "candidates", len(resp.Candidates))
	return imageFromSDKResponse(resp)
}

func imageFromSDKResponse(resp *genai.GenerateContentResponse) (portrait.Image, error) {
	if resp == nil {
		return portrait.Image{}, fmt.Errorf("%w: empty response", portrait.ErrNoImage)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return portrait.Image{}, fmt.Errorf("%w: prompt blocked (%s)", portrait.ErrNoImage, resp.PromptFeedback.BlockReason)
		}
		return portrait.Image{}, fmt.Errorf("%w: no candidates", portrait.ErrNoImage)
	}

	cand := resp.Candidates[0]
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
				continue
			}
			mimeType := p.InlineData.MIMEType
			if mimeType == "" {
				mimeType = fallbackImageMIME
			}
			return portrait.Image{Data: p.InlineData.Data, MIMEType: mimeType}, nil
		}
	}

	if cand.FinishReason != "" && cand.FinishReason != genai.FinishReasonUnspecified && cand.FinishReason != genai.FinishReasonStop {
		return portrait.Image{}, fmt.Errorf("%w: finish reason %s", portrait.ErrNoImage, cand.FinishReason)
	}
	return portrait.Image{}, portrait.ErrNoImage
}
