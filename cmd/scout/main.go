// Package main provides the long-running scout service:
// - Ingestion (continuous): websocket launch feed + market enrichment
// - Evaluation: dual-provider consensus, scoring, risk, buy decision
// - Persistence: PostgreSQL evaluations + ClickHouse score history
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"token-scout/internal/consensus"
	"token-scout/internal/decision"
	"token-scout/internal/domain"
	"token-scout/internal/ingestion"
	"token-scout/internal/observability"
	"token-scout/internal/pipeline"
	"token-scout/internal/provider"
	"token-scout/internal/ratelimit"
	"token-scout/internal/storage"
	chstore "token-scout/internal/storage/clickhouse"
	"token-scout/internal/storage/memory"
	"token-scout/internal/storage/migrations"
	pgstore "token-scout/internal/storage/postgres"
)

// Server holds all components of the scout service.
type Server struct {
	feedEndpoint string
	useMemory    bool

	evaluator *pipeline.Evaluator
	stores    *allStores
	logger    *log.Logger

	// State
	mu            sync.Mutex
	started       time.Time
	lastEvaluated time.Time
	evaluations   int
}

// allStores holds all storage implementations.
type allStores struct {
	evaluationStore storage.EvaluationStore
	historyStore    storage.ScoreHistoryStore
	kvStore         storage.KVStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	feedEndpoint := flag.String("feed-endpoint", os.Getenv("LAUNCH_FEED_ENDPOINT"), "WebSocket token launch feed endpoint")
	groqKey := flag.String("groq-api-key", os.Getenv("GROQ_API_KEY"), "Groq API key")
	geminiKey := flag.String("gemini-api-key", os.Getenv("GEMINI_API_KEY"), "Gemini API key")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	sharedCounters := flag.Bool("shared-counters", false, "Back rate limiter counters with PostgreSQL for multi-process deployments")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for health/metrics/status")
	groqRPM := flag.Int("groq-rpm", 30, "Groq requests per minute")
	geminiRPM := flag.Int("gemini-rpm", 15, "Gemini requests per minute")
	dexRPM := flag.Int("dexscreener-rpm", 300, "DexScreener requests per minute")
	minConfidence := flag.Float64("min-confidence", decision.DefaultCriteria().MinConfidence, "Minimum decision confidence to buy")
	maxPositionSOL := flag.Float64("max-position-sol", decision.DefaultCriteria().MaxPositionSOL, "Maximum position size in SOL")

	flag.Parse()

	logger := log.New(os.Stdout, "[scout] ", log.LstdFlags|log.Lshortfile)

	if *feedEndpoint == "" {
		logger.Fatal("--feed-endpoint is required")
	}
	if *groqKey == "" || *geminiKey == "" {
		logger.Fatal("--groq-api-key and --gemini-api-key are required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Rate limiter shared by every outbound service.
	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger)}
	if *sharedCounters && !*useMemory {
		limiterOpts = append(limiterOpts, ratelimit.WithStore(stores.kvStore))
	}
	limiter := ratelimit.New(map[string]ratelimit.Config{
		"groq:chat":         {MaxRequests: *groqRPM, Window: time.Minute, MinSpacing: 2 * time.Second},
		"gemini:chat":       {MaxRequests: *geminiRPM, Window: time.Minute, MinSpacing: 4 * time.Second},
		"dexscreener:pairs": {MaxRequests: *dexRPM, Window: time.Minute},
	}, limiterOpts...)

	// Providers and consensus
	groq := provider.NewGroqAdapter(*groqKey, limiter)
	gemini := provider.NewGeminiAdapter(*geminiKey, limiter)
	router := consensus.NewRouter(groq, gemini, consensus.DefaultConfig(), logger)

	criteria := decision.DefaultCriteria()
	criteria.MinConfidence = *minConfidence
	criteria.MaxPositionSOL = *maxPositionSOL
	engine := decision.NewEngine(criteria)

	evaluator := pipeline.NewEvaluator(router, engine, logger,
		pipeline.WithStores(stores.evaluationStore, stores.historyStore))

	server := &Server{
		feedEndpoint: *feedEndpoint,
		useMemory:    *useMemory,
		evaluator:    evaluator,
		stores:       stores,
		logger:       logger,
		started:      time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go server.startHTTPServer(*metricsAddr)

	err = server.Run(ctx, limiter)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores and runs migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			evaluationStore: memory.NewEvaluationStore(),
			historyStore:    memory.NewScoreHistoryStore(),
			kvStore:         memory.NewKVStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	// ClickHouse (migrations create the database and return the connection)
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	stores := &allStores{
		evaluationStore: pgstore.NewEvaluationStore(pool),
		historyStore:    chstore.NewScoreHistoryStore(chConn),
		kvStore:         pgstore.NewKVStore(pool),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the feed and consumes it until shutdown.
func (s *Server) Run(ctx context.Context, limiter *ratelimit.Limiter) error {
	s.logger.Printf("Starting scout (feed: %s)...", s.feedEndpoint)

	feed, err := ingestion.NewLaunchFeed(ctx, s.feedEndpoint, nil, s.logger)
	if err != nil {
		return fmt.Errorf("connect launch feed: %w", err)
	}
	defer feed.Close()

	dex := ingestion.NewDexScreenerClient(limiter)
	collector := ingestion.NewCollector(feed, dex, s.trackingEvaluator(), s.logger)

	s.logger.Println("Scout started")
	return collector.Run(ctx)
}

// trackingEvaluator wraps the evaluator to update server state.
func (s *Server) trackingEvaluator() ingestion.Evaluator {
	return evaluatorFunc(func(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.EvaluationRecord, error) {
		rec, err := s.evaluator.Evaluate(ctx, snapshot)
		if err == nil {
			s.mu.Lock()
			s.evaluations++
			s.lastEvaluated = time.Now()
			s.mu.Unlock()
			observability.DefaultMetrics.LastSuccessfulEvaluation.SetToCurrentTime()
		}
		return rec, err
	})
}

type evaluatorFunc func(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.EvaluationRecord, error)

func (f evaluatorFunc) Evaluate(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.EvaluationRecord, error) {
	return f(ctx, snapshot)
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/recent", s.handleRecent)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status        string    `json:"status"`
	Uptime        string    `json:"uptime"`
	Evaluations   int       `json:"evaluations"`
	LastEvaluated time.Time `json:"last_evaluated,omitempty"`
	Memory        bool      `json:"memory_storage"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).String(),
		Evaluations:   s.evaluations,
		LastEvaluated: s.lastEvaluated,
		Memory:        s.useMemory,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleRecent returns the latest evaluation records as JSON.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	recs, err := s.stores.evaluationStore.GetRecent(r.Context(), 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
