// Package genai wraps the Gemini generateContent API for the two inference
// calls this service makes: describing an image and generating a narrative.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"autostory/internal/domain"
	"autostory/internal/providers/prompt"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("genai: api key is required")

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 60 * time.Second

	captionInstruction = "Analiza la siguiente imagen y proporciona una descripción técnica y objetiva. " +
		"Enfócate en los elementos presentes, su composición, estilo visual y posibles connotaciones. " +
		"Evita interpretaciones subjetivas o narrativas. Enumera los puntos clave de forma concisa."
)

// Options configures the Gemini client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	// Limiter throttles outbound model calls when set. Zero value means
	// no throttling.
	Limiter *rate.Limiter
	Logger  zerolog.Logger
}

// Client performs HTTP calls to the Gemini generateContent endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NarrativeRequest carries the inputs for one narrative generation. Exactly
// one of Caption or ImageJPEG may be set; Caption feeds the prompt as
// textual context, ImageJPEG rides along as an inline multimodal part.
type NarrativeRequest struct {
	UserText  string
	Format    domain.Format
	Tone      domain.Tone
	Caption   string
	ImageJPEG []byte
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	CandidateCount int `json:"candidateCount,omitempty"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a client with sane defaults. An empty API key is not
// an error here: each call checks the precondition so the service can start
// degraded and report the missing credential per operation.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		limiter:    opts.Limiter,
		logger:     opts.Logger,
	}
}

// Model returns the configured Gemini model identifier.
func (c *Client) Model() string {
	return c.model
}

// DescribeImage asks the vision model for a technical, objective description
// of the normalized JPEG bytes.
func (c *Client) DescribeImage(ctx context.Context, imageJPEG []byte) (string, error) {
	parts := []part{
		{Text: captionInstruction},
		{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(imageJPEG),
		}},
	}

	text, err := c.generate(ctx, parts)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty caption", domain.ErrNoUsableText)
	}
	return text, nil
}

// GenerateNarrative assembles the prompt and invokes the model. The
// extracted narrative is never empty: an exhausted response surfaces as
// domain.ErrNoUsableText, distinct from transport failures.
func (c *Client) GenerateNarrative(ctx context.Context, req NarrativeRequest) (string, error) {
	parts := []part{{Text: prompt.Build(req.UserText, req.Format, req.Tone, req.Caption)}}
	if len(req.ImageJPEG) > 0 {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(req.ImageJPEG),
		}})
	}

	text, err := c.generate(ctx, parts)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: model returned no text", domain.ErrNoUsableText)
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, parts []part) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: %v", domain.ErrProviderFailure, ErrMissingAPIKey)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %v", domain.ErrProviderFailure, err)
		}
	}

	payload := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{CandidateCount: 1},
	}

	var response generateContentResponse
	if err := c.invoke(ctx, payload, &response); err != nil {
		c.logger.Error().Err(err).Str("model", c.model).Msg("genai: model call failed")
		return "", fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	return extractText(response), nil
}

func (c *Client) invoke(ctx context.Context, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gemini status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

// extractText pulls usable text out of a possibly-partial response. Fast
// path: the first candidate carries a single non-empty text part. Fallback:
// concatenate every text-bearing part across all candidates with single
// spaces.
func extractText(resp generateContentResponse) string {
	if len(resp.Candidates) > 0 {
		parts := resp.Candidates[0].Content.Parts
		if len(parts) == 1 {
			if t := strings.TrimSpace(parts[0].Text); t != "" {
				return t
			}
		}
	}

	var collected []string
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				collected = append(collected, t)
			}
		}
	}
	return strings.Join(collected, " ")
}
