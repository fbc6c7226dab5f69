package ratelimit

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-scout/internal/observability"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(configs map[string]Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(configs,
		WithClock(clock.Now),
		WithLogger(log.New(io.Discard, "", 0)),
	)
	return l, clock
}

func TestCheck_WindowQuota(t *testing.T) {
	const n = 3
	l, clock := newTestLimiter(map[string]Config{
		"groq:chat": {MaxRequests: n, Window: time.Minute},
	})
	ctx := context.Background()

	for i := 0; i < n; i++ {
		res, err := l.Check(ctx, "groq:chat")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "call %d within quota", i+1)
		assert.Equal(t, n-i-1, res.Remaining)
	}

	// (N+1)-th call within the window is denied.
	res, err := l.Check(ctx, "groq:chat")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// After the window resets, one call is allowed immediately.
	clock.Advance(time.Minute)
	res, err = l.Check(ctx, "groq:chat")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_MinSpacingDeniesWithQuotaRemaining(t *testing.T) {
	l, clock := newTestLimiter(map[string]Config{
		"gemini:chat": {MaxRequests: 100, Window: time.Minute, MinSpacing: time.Second},
	})
	ctx := context.Background()

	res, err := l.Check(ctx, "gemini:chat")
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// Quota remains but spacing has not elapsed: denied.
	res, err = l.Check(ctx, "gemini:chat")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	clock.Advance(time.Second)
	res, err = l.Check(ctx, "gemini:chat")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_UnconfiguredServiceAllowed(t *testing.T) {
	l, _ := newTestLimiter(nil)

	res, err := l.Check(context.Background(), "unknown:api")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestGetStatus(t *testing.T) {
	l, _ := newTestLimiter(map[string]Config{
		"groq:chat": {MaxRequests: 5, Window: time.Minute},
	})
	ctx := context.Background()

	_, ok := l.GetStatus("unknown:api")
	assert.False(t, ok)

	_, err := l.Check(ctx, "groq:chat")
	require.NoError(t, err)
	_, err = l.Check(ctx, "groq:chat")
	require.NoError(t, err)

	st, ok := l.GetStatus("groq:chat")
	require.True(t, ok)
	assert.Equal(t, 2, st.Used)
	assert.Equal(t, 3, st.Remaining)
	assert.Equal(t, 5, st.Limit)

	all := l.GetAllStatuses()
	require.Len(t, all, 1)
	assert.Equal(t, "groq:chat", all[0].Service)
}

func TestCheck_ConcurrentAccess(t *testing.T) {
	const n = 50
	l, _ := newTestLimiter(map[string]Config{
		"svc": {MaxRequests: n, Window: time.Minute},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	allowed := make(chan bool, 2*n)
	for i := 0; i < 2*n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "svc")
			require.NoError(t, err)
			allowed <- res.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, n, count, "exactly MaxRequests calls may pass")
}

func TestExecute_DenialExhaustsBudget(t *testing.T) {
	// The fake clock never advances, so the window never resets and
	// every Check is denied. fn must never run.
	l, _ := newTestLimiter(map[string]Config{
		"svc": {MaxRequests: 1, Window: 5 * time.Millisecond},
	})
	ctx := context.Background()

	// Consume the only slot.
	_, err := l.Check(ctx, "svc")
	require.NoError(t, err)

	calls := 0
	_, err = Execute(ctx, l, "svc", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	}, ExecuteOptions{MaxRetries: 2, Backoff: time.Millisecond})

	var rlErr *RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "svc", rlErr.Service)
	assert.Equal(t, 0, calls)
}

func TestExecute_RetriesRemoteRateLimit(t *testing.T) {
	l, _ := newTestLimiter(map[string]Config{
		"svc": {MaxRequests: 100, Window: time.Minute},
	})
	ctx := context.Background()

	calls := 0
	result, err := Execute(ctx, l, "svc", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &HTTPStatusError{StatusCode: 429, Body: "slow down"}
		}
		return 42, nil
	}, ExecuteOptions{MaxRetries: 3, Backoff: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestExecute_NonRateLimitErrorNotRetried(t *testing.T) {
	l, _ := newTestLimiter(map[string]Config{
		"svc": {MaxRequests: 100, Window: time.Minute},
	})

	boom := errors.New("connection refused")
	calls := 0
	_, err := Execute(context.Background(), l, "svc", func(context.Context) (int, error) {
		calls++
		return 0, boom
	}, ExecuteOptions{MaxRetries: 3, Backoff: time.Millisecond})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestExecute_ExhaustsBudget(t *testing.T) {
	l, _ := newTestLimiter(map[string]Config{
		"svc": {MaxRequests: 100, Window: time.Minute},
	})

	calls := 0
	_, err := Execute(context.Background(), l, "svc", func(context.Context) (int, error) {
		calls++
		return 0, &HTTPStatusError{StatusCode: 429, Body: "quota exceeded"}
	}, ExecuteOptions{MaxRetries: 2, Backoff: time.Millisecond})

	var rlErr *RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, 3, calls, "initial call plus two retries")

	// The sentinel and the last provider error are both in the chain.
	assert.ErrorIs(t, err, ErrRateLimited)
	var statusErr *HTTPStatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 429, statusErr.StatusCode)
}

func TestExecute_RecordsLimiterMetrics(t *testing.T) {
	l, _ := newTestLimiter(map[string]Config{
		"metered:svc": {MaxRequests: 1, Window: time.Minute},
	})
	ctx := context.Background()

	// Consume the only slot; the frozen clock keeps every Check denied.
	_, err := l.Check(ctx, "metered:svc")
	require.NoError(t, err)

	denials := observability.DefaultMetrics.RateLimitDenials.WithLabelValues("metered:svc")
	retries := observability.DefaultMetrics.RateLimitRetries.WithLabelValues("metered:svc")
	deniedBefore := testutil.ToFloat64(denials)
	retriedBefore := testutil.ToFloat64(retries)

	_, err = Execute(ctx, l, "metered:svc", func(context.Context) (int, error) {
		return 0, nil
	}, ExecuteOptions{MaxRetries: 2, Backoff: time.Millisecond})
	require.ErrorIs(t, err, ErrRateLimited)

	assert.Equal(t, deniedBefore+3, testutil.ToFloat64(denials), "one denial per attempt")
	assert.Equal(t, retriedBefore+2, testutil.ToFloat64(retries))
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.False(t, IsRateLimitError(errors.New("connection reset")))
	assert.True(t, IsRateLimitError(&HTTPStatusError{StatusCode: 429}))
	assert.False(t, IsRateLimitError(&HTTPStatusError{StatusCode: 500}))
	assert.True(t, IsRateLimitError(errors.New("Rate limit reached for model")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for project")))
	assert.True(t, IsRateLimitError(errors.New("429 Too Many Requests")))
	assert.True(t, IsRateLimitError(errors.New("please retry after 20 seconds")))
}

func TestRetryAfterFromError(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryAfterFromError(nil))
	assert.Equal(t, time.Duration(0), RetryAfterFromError(errors.New("no hint here")))

	// Structured metadata wins over text parsing.
	err := &HTTPStatusError{StatusCode: 429, Body: "retry after 99 seconds", RetryAfter: 2 * time.Second}
	assert.Equal(t, 2*time.Second, RetryAfterFromError(err))

	assert.Equal(t, 20*time.Second, RetryAfterFromError(errors.New("please retry after 20 seconds")))
	assert.Equal(t, 1500*time.Millisecond, RetryAfterFromError(errors.New("Retrying in 1.5s")))
}
