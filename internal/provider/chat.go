package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"token-scout/internal/domain"
	"token-scout/internal/observability"
	"token-scout/internal/ratelimit"
)

// DefaultTimeout bounds each provider HTTP call. The transport timeout
// is explicit here rather than inherited from http.DefaultClient.
const DefaultTimeout = 30 * time.Second

// chatBackend abstracts one provider's wire format. complete performs a
// single system+user chat call and returns the raw text reply plus the
// provider-reported total token usage (0 if unknown).
type chatBackend interface {
	Name() string
	complete(ctx context.Context, system, user string) (reply string, tokens int, err error)
}

// completion is one chat call result as seen by getScore.
type completion struct {
	reply  string
	tokens int
}

// getScore is the shared adapter core: prompt, rate-limited call,
// parse with exactly one repair follow-up, schema validation, metadata.
func getScore(ctx context.Context, limiter *ratelimit.Limiter, backend chatBackend, retry ratelimit.ExecuteOptions, snapshot *domain.TokenSnapshot) (resp *domain.ModelResponse, err error) {
	service := backend.Name() + ":chat"
	userPrompt := BuildUserPrompt(snapshot)
	start := time.Now()
	defer func() {
		tokens := 0
		if resp != nil {
			tokens = resp.TokensUsed
		}
		observability.RecordProviderCall(backend.Name(), callOutcome(err), time.Since(start).Seconds(), tokens)
	}()

	first, err := executeChat(ctx, limiter, backend, service, retry, systemPrompt, userPrompt)
	if err != nil {
		return nil, classify(backend.Name(), err)
	}

	tokens := first.tokens
	score, syntaxErr, schemaErr := ParseScore(first.reply)
	if syntaxErr != nil {
		// Exactly one corrective follow-up for malformed JSON.
		repairUser := userPrompt + "\n\n" + repairPrompt
		second, repairErr := executeChat(ctx, limiter, backend, service, retry, systemPrompt, repairUser)
		if repairErr != nil {
			return nil, classify(backend.Name(), repairErr)
		}
		tokens += second.tokens
		score, syntaxErr, schemaErr = ParseScore(second.reply)
		if syntaxErr != nil {
			return nil, newError(backend.Name(), KindBadReply,
				fmt.Errorf("reply invalid after repair attempt: %w", syntaxErr))
		}
	}
	if schemaErr != nil {
		return nil, newError(backend.Name(), KindSchema, schemaErr)
	}

	return &domain.ModelResponse{
		Provider:   backend.Name(),
		Score:      *score,
		TokensUsed: tokens,
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// callOutcome maps a getScore result to a metric label.
func callOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return string(provErr.Kind)
	}
	return "error"
}

// executeChat routes one chat call through the rate limiter.
func executeChat(ctx context.Context, limiter *ratelimit.Limiter, backend chatBackend, service string, retry ratelimit.ExecuteOptions, system, user string) (completion, error) {
	return ratelimit.Execute(ctx, limiter, service, func(ctx context.Context) (completion, error) {
		reply, tokens, err := backend.complete(ctx, system, user)
		if err != nil {
			return completion{}, err
		}
		return completion{reply: reply, tokens: tokens}, nil
	}, retry)
}

// classify wraps a transport-level failure as a ProviderError.
func classify(provider string, err error) *ProviderError {
	var rlErr *ratelimit.RateLimitedError
	if errors.As(err, &rlErr) || errors.Is(err, ratelimit.ErrRateLimited) {
		return newError(provider, KindRateLimit, err)
	}
	return newError(provider, KindTransport, err)
}

// postJSON sends a JSON POST and returns the response body.
// 429 responses become *ratelimit.HTTPStatusError with structured
// Retry-After metadata so the limiter's Execute wrapper can back off.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &ratelimit.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), 512),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			statusErr.RetryAfter = parseRetryAfterHeader(resp.Header.Get("Retry-After"))
		}
		return nil, statusErr
	}

	return respBody, nil
}

// parseRetryAfterHeader parses a delay-seconds Retry-After value.
func parseRetryAfterHeader(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
