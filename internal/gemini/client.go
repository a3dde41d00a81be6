package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"identity-forge/internal/portrait"
)

const (
	DefaultModel      = "gemini-2.5-flash-image"
	DefaultBaseURL    = "https://generativelanguage.googleapis.com"
	DefaultAPIVersion = "v1beta"

	fallbackImageMIME = "image/png"
)

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the generateContent REST endpoint directly.
type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		model:      model,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// GenerateImage sends the prompt followed by the portrait and returns the
// first image part of the first candidate.
func (c *Client) GenerateImage(ctx context.Context, prompt string, input portrait.Image) (portrait.Image, error) {
	if input.Empty() {
		return portrait.Image{}, errors.New("input image is empty")
	}

	mimeType := input.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	req := generateContentRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &blob{Data: input.Base64(), MimeType: mimeType}},
			},
		}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}

	resp, err := c.generateContent(ctx, c.model, req)
	if err != nil {
		return portrait.Image{}, err
	}
	return extractImage(resp)
}

func (c *Client) generateContent(ctx context.Context, model string, payload generateContentRequest) (generateContentResponse, error) {
	if c.httpClient == nil {
		return generateContentResponse{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return generateContentResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return generateContentResponse{}, &APIError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       strings.TrimSpace(string(rawBody)),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return generateContentResponse{}, fmt.Errorf("decode response: %w", err)
	}

	c.logger.DebugContext(ctx, "gemini response", "model", model, "candidates", len(decoded.Candidates))
	return decoded, nil
}

func extractImage(resp generateContentResponse) (portrait.Image, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return portrait.Image{}, fmt.Errorf("%w: prompt blocked (%s)", portrait.ErrNoImage, resp.PromptFeedback.BlockReason)
		}
		return portrait.Image{}, fmt.Errorf("%w: no candidates", portrait.ErrNoImage)
	}

	cand := resp.Candidates[0]
	for _, p := range cand.Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return portrait.Image{}, fmt.Errorf("decode inline image: %w", err)
		}
		mimeType := p.InlineData.MimeType
		if mimeType == "" {
			mimeType = fallbackImageMIME
		}
		return portrait.Image{Data: data, MIMEType: mimeType}, nil
	}

	if cand.FinishReason != "" && cand.FinishReason != "STOP" {
		return portrait.Image{}, fmt.Errorf("%w: finish reason %s", portrait.ErrNoImage, cand.FinishReason)
	}
	return portrait.Image{}, portrait.ErrNoImage
}
