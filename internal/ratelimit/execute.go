package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"token-scout/internal/observability"
)

// Default retry settings for Execute.
const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
)

// ErrRateLimited is the sentinel wrapped by rate-limit failures.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitedError reports quota exhaustion for a service after all
// retries. The caller may retry after RetryAfter.
type RateLimitedError struct {
	Service    string
	Attempts   int
	RetryAfter time.Duration
	Last       error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("service %s rate limited after %d attempts (retry after %s)",
		e.Service, e.Attempts, e.RetryAfter)
}

// Unwrap exposes both the sentinel and the underlying provider error,
// so errors.Is(err, ErrRateLimited) holds regardless of the cause.
func (e *RateLimitedError) Unwrap() []error {
	if e.Last != nil {
		return []error{ErrRateLimited, e.Last}
	}
	return []error{ErrRateLimited}
}

// HTTPStatusError carries an HTTP status code through the error chain so
// 429 detection does not depend on message text.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration // from the Retry-After header, 0 if absent
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// ExecuteOptions tunes the retry behavior of Execute.
type ExecuteOptions struct {
	MaxRetries int           // total retry attempts after the first call
	Backoff    time.Duration // initial backoff, doubled per attempt
}

func (o ExecuteOptions) withDefaults() ExecuteOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	return o
}

// Execute runs fn under the service's quota with retry/backoff.
//
// A denied Check sleeps for the indicated RetryAfter (or the exponential
// fallback) and retries under the same budget. If fn fails with a
// detected rate-limit error, the wait is extracted or estimated and the
// call retried. Non-rate-limit errors from fn are returned as-is: they
// belong to the caller, not to quota handling.
func Execute[T any](ctx context.Context, l *Limiter, service string, fn func(context.Context) (T, error), opts ExecuteOptions) (T, error) {
	var zero T
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		check, err := l.Check(ctx, service)
		if err != nil {
			return zero, fmt.Errorf("check limit for %s: %w", service, err)
		}

		if !check.Allowed {
			observability.RecordRateLimitDenial(service)
			lastErr = ErrRateLimited
			wait := check.RetryAfter
			if wait <= 0 {
				wait = backoffDelay(opts.Backoff, attempt)
			}
			if attempt == opts.MaxRetries {
				return zero, &RateLimitedError{Service: service, Attempts: attempt + 1, RetryAfter: wait}
			}
			observability.RecordRateLimitRetry(service)
			if err := sleep(ctx, wait); err != nil {
				return zero, err
			}
			continue
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRateLimitError(err) {
			return zero, err
		}

		lastErr = err
		wait := RetryAfterFromError(err)
		if wait <= 0 {
			wait = backoffDelay(opts.Backoff, attempt)
		}
		if attempt == opts.MaxRetries {
			break
		}
		observability.RecordRateLimitRetry(service)
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, &RateLimitedError{Service: service, Attempts: opts.MaxRetries + 1, Last: lastErr}
}

// IsRateLimitError reports whether err looks like a remote quota failure:
// an HTTP 429, or a message matching the usual provider phrasings.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "too many requests") ||
		retryAfterPattern.MatchString(msg)
}

// retryAfterPattern matches the free-text "retry after N seconds" phrase
// some providers embed in error bodies. Best-effort fallback; structured
// Retry-After metadata is preferred when the transport exposes it.
var retryAfterPattern = regexp.MustCompile(`retry(?:ing)?\s+(?:in|after)\s+([0-9.]+)\s*s`)

// RetryAfterFromError extracts a wait duration from err.
// Structured HTTPStatusError.RetryAfter wins; the text pattern is the
// isolated fallback. Returns 0 when nothing usable is found.
func RetryAfterFromError(err error) time.Duration {
	if err == nil {
		return 0
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter
	}

	m := retryAfterPattern.FindStringSubmatch(strings.ToLower(err.Error()))
	if len(m) == 2 {
		if secs, parseErr := strconv.ParseFloat(m[1], 64); parseErr == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

// backoffDelay returns the exponential delay for the given attempt,
// capped at maxBackoff.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

// sleep waits for d or until ctx is done, suspending only the caller.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
