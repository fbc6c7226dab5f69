package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"token-scout/internal/domain"
	"token-scout/internal/ratelimit"
)

// Groq defaults.
const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// GroqAdapter scores tokens through Groq's OpenAI-compatible chat API.
type GroqAdapter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	limiter *ratelimit.Limiter
	retry   ratelimit.ExecuteOptions
}

// GroqOption configures GroqAdapter.
type GroqOption func(*GroqAdapter)

// WithGroqBaseURL overrides the API base URL. Used by tests.
func WithGroqBaseURL(url string) GroqOption {
	return func(a *GroqAdapter) { a.baseURL = url }
}

// WithGroqModel sets the model identifier.
func WithGroqModel(model string) GroqOption {
	return func(a *GroqAdapter) { a.model = model }
}

// WithGroqHTTPClient sets a custom http.Client.
func WithGroqHTTPClient(client *http.Client) GroqOption {
	return func(a *GroqAdapter) { a.client = client }
}

// WithGroqRetry tunes the rate-limit retry budget.
func WithGroqRetry(opts ratelimit.ExecuteOptions) GroqOption {
	return func(a *GroqAdapter) { a.retry = opts }
}

// NewGroqAdapter creates a Groq adapter. All calls pass through limiter
// under service "groq:chat".
func NewGroqAdapter(apiKey string, limiter *ratelimit.Limiter, opts ...GroqOption) *GroqAdapter {
	a := &GroqAdapter{
		apiKey:  apiKey,
		baseURL: DefaultGroqBaseURL,
		model:   DefaultGroqModel,
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
	_ Adapter     = (*GroqAdapter)(nil)
	_ chatBackend = (*GroqAdapter)(nil)
)

// Name returns "groq".
func (a *GroqAdapter) Name() string { return "groq" }

// GetScore implements Adapter.
func (a *GroqAdapter) GetScore(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.ModelResponse, error) {
	return getScore(ctx, a.limiter, a, a.retry, snapshot)
}

// OpenAI-compatible chat wire types.
type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqRequest struct {
	Model          string          `json:"model"`
	Messages       []groqMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *groqRespFormat `json:"response_format,omitempty"`
}

type groqRespFormat struct {
	Type string `json:"type"`
}

type groqResponse struct {
	Choices []struct {
		Message groqMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (a *GroqAdapter) complete(ctx context.Context, system, user string) (string, int, error) {
	reqBody := groqRequest{
		Model: a.model,
		Messages: []groqMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    0.2,
		ResponseFormat: &groqRespFormat{Type: "json_object"},
	}

	headers := map[string]string{"Authorization": "Bearer " + a.apiKey}
	body, err := postJSON(ctx, a.client, a.baseURL+"/chat/completions", headers, reqBody)
	if err != nil {
		return "", 0, err
	}

	var parsed groqResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("unmarshal groq response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("groq response has no choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}
