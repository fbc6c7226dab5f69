package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"token-scout/internal/domain"
	"token-scout/internal/ratelimit"
)

// Gemini defaults.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiAdapter scores tokens through the Gemini generateContent API.
type GeminiAdapter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	limiter *ratelimit.Limiter
	retry   ratelimit.ExecuteOptions
}

// GeminiOption configures GeminiAdapter.
type GeminiOption func(*GeminiAdapter)

// WithGeminiBaseURL overrides the API base URL. Used by tests.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(a *GeminiAdapter) { a.baseURL = url }
}

// WithGeminiModel sets the model identifier.
func WithGeminiModel(model string) GeminiOption {
	return func(a *GeminiAdapter) { a.model = model }
}

// WithGeminiHTTPClient sets a custom http.Client.
func WithGeminiHTTPClient(client *http.Client) GeminiOption {
	return func(a *GeminiAdapter) { a.client = client }
}

// WithGeminiRetry tunes the rate-limit retry budget.
func WithGeminiRetry(opts ratelimit.ExecuteOptions) GeminiOption {
	return func(a *GeminiAdapter) { a.retry = opts }
}

// NewGeminiAdapter creates a Gemini adapter. All calls pass through
// limiter under service "gemini:chat".
func NewGeminiAdapter(apiKey string, limiter *ratelimit.Limiter, opts ...GeminiOption) *GeminiAdapter {
	a := &GeminiAdapter{
		apiKey:  apiKey,
		baseURL: DefaultGeminiBaseURL,
		model:   DefaultGeminiModel,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: limiter,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compile-time interface checks.
var (
	_ Adapter     = (*GeminiAdapter)(nil)
	_ chatBackend = (*GeminiAdapter)(nil)
)

// Name returns "gemini".
func (a *GeminiAdapter) Name() string { return "gemini" }

// GetScore implements Adapter.
func (a *GeminiAdapter) GetScore(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.ModelResponse, error) {
	return getScore(ctx, a.limiter, a, a.retry, snapshot)
}

// Gemini generateContent wire types.
type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"system_instruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiGenConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (a *GeminiAdapter) complete(ctx context.Context, system, user string) (string, int, error) {
	reqBody := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: user}}},
		},
		GenerationConfig: geminiGenConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, a.apiKey)
	body, err := postJSON(ctx, a.client, url, nil, reqBody)
	if err != nil {
		return "", 0, err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("unmarshal gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", 0, fmt.Errorf("gemini response has no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, parsed.UsageMetadata.TotalTokenCount, nil
}
