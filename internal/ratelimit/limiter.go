// Package ratelimit provides per-service window counters and a shared
// retry/backoff wrapper for every outbound call the pipeline makes.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// Config is the quota for one named service.
type Config struct {
	// MaxRequests allowed per Window.
	MaxRequests int
	// Window is the fixed counting window.
	Window time.Duration
	// MinSpacing is an optional minimum delay between consecutive
	// requests, enforced independently of the window counter.
	MinSpacing time.Duration
}

// CheckResult is the outcome of a quota check.
type CheckResult struct {
	Allowed    bool
	RetryAfter time.Duration // wait hint when denied, 0 if unknown
	Remaining  int           // requests left in the current window
}

// Status is a read-only view of one service's counter, for health endpoints.
type Status struct {
	Service   string
	Used      int
	Limit     int
	Remaining int
	ResetsAt  time.Time
}

// entry is the live counter state for one service.
type entry struct {
	count       int
	windowStart time.Time
	lastRequest time.Time
}

// CounterStore is an optional external atomic counter backing, for
// deployments where the limiter must be shared across processes.
// storage.KVStore satisfies this interface.
type CounterStore interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter tracks per-service quotas. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	configs map[string]Config
	entries map[string]*entry

	store  CounterStore // nil means in-process counters only
	logger *log.Logger
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore backs the window counters with an external atomic store.
// MinSpacing enforcement stays in-process.
func WithStore(s CounterStore) Option {
	return func(l *Limiter) { l.store = s }
}

// WithLogger sets the limiter logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter with the given per-service configs.
func New(configs map[string]Config, opts ...Option) *Limiter {
	l := &Limiter{
		configs: make(map[string]Config, len(configs)),
		entries: make(map[string]*entry),
		logger:  log.New(os.Stdout, "[ratelimit] ", log.LstdFlags),
		now:     time.Now,
	}
	for name, cfg := range configs {
		l.configs[name] = cfg
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetConfig adds or replaces the quota for a service at runtime.
func (l *Limiter) SetConfig(service string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[service] = cfg
	delete(l.entries, service)
}

// Check evaluates the window counter for service and consumes one slot
// when allowed.
//
// Unconfigured services are allowed by default with a logged warning:
// an explicit permissive fallback so a missing config entry degrades to
// unlimited calls instead of blocking the pipeline.
//
// A request can be denied for MinSpacing reasons even when window quota
// remains; the two controls are deliberately checked together (observed
// behavior of the spacing/quota conflation, kept as-is).
func (l *Limiter) Check(ctx context.Context, service string) (CheckResult, error) {
	l.mu.Lock()
	cfg, configured := l.configs[service]
	if !configured {
		l.mu.Unlock()
		l.logger.Printf("WARN: no rate limit configured for service %q, allowing", service)
		return CheckResult{Allowed: true, Remaining: -1}, nil
	}

	now := l.now()
	e, ok := l.entries[service]
	if !ok {
		e = &entry{windowStart: now}
		l.entries[service] = e
	}

	// Reset the counter when the window has elapsed.
	if now.Sub(e.windowStart) >= cfg.Window {
		e.count = 0
		e.windowStart = now
	}

	if e.count >= cfg.MaxRequests {
		retryAfter := e.windowStart.Add(cfg.Window).Sub(now)
		l.mu.Unlock()
		return CheckResult{Allowed: false, RetryAfter: retryAfter}, nil
	}

	if cfg.MinSpacing > 0 && !e.lastRequest.IsZero() {
		if since := now.Sub(e.lastRequest); since < cfg.MinSpacing {
			retryAfter := cfg.MinSpacing - since
			l.mu.Unlock()
			return CheckResult{Allowed: false, RetryAfter: retryAfter}, nil
		}
	}

	if l.store == nil {
		e.count++
		e.lastRequest = now
		remaining := cfg.MaxRequests - e.count
		l.mu.Unlock()
		return CheckResult{Allowed: true, Remaining: remaining}, nil
	}

	// Store-backed: the shared counter is authoritative for the window.
	windowStart := e.windowStart
	e.lastRequest = now
	l.mu.Unlock()

	key := fmt.Sprintf("ratelimit:%s:%d", service, windowStart.UnixMilli())
	count, err := l.store.Incr(ctx, key, cfg.Window)
	if err != nil {
		return CheckResult{}, fmt.Errorf("incr shared counter for %s: %w", service, err)
	}
	if count > int64(cfg.MaxRequests) {
		retryAfter := windowStart.Add(cfg.Window).Sub(l.now())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return CheckResult{Allowed: false, RetryAfter: retryAfter}, nil
	}

	l.mu.Lock()
	e.count = int(count)
	l.mu.Unlock()
	return CheckResult{Allowed: true, Remaining: cfg.MaxRequests - int(count)}, nil
}

// GetStatus returns the counter status for one service.
// The second return value is false for unconfigured services.
func (l *Limiter) GetStatus(service string) (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, configured := l.configs[service]
	if !configured {
		return Status{}, false
	}

	st := Status{Service: service, Limit: cfg.MaxRequests, Remaining: cfg.MaxRequests}
	if e, ok := l.entries[service]; ok {
		used := e.count
		if l.now().Sub(e.windowStart) >= cfg.Window {
			used = 0
		}
		st.Used = used
		st.Remaining = cfg.MaxRequests - used
		st.ResetsAt = e.windowStart.Add(cfg.Window)
	}
	return st, true
}

// GetAllStatuses returns counter statuses for every configured service.
func (l *Limiter) GetAllStatuses() []Status {
	l.mu.Lock()
	services := make([]string, 0, len(l.configs))
	for name := range l.configs {
		services = append(services, name)
	}
	l.mu.Unlock()

	sort.Strings(services)
	statuses := make([]Status, 0, len(services))
	for _, name := range services {
		if st, ok := l.GetStatus(name); ok {
			statuses = append(statuses, st)
		}
	}
	return statuses
}
