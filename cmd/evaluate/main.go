// Package main provides a one-shot evaluation CLI: it takes a token
// snapshot (from a file, stdin, or a live market lookup by mint),
// runs the full evaluation pipeline once and prints the result.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"token-scout/internal/consensus"
	"token-scout/internal/decision"
	"token-scout/internal/domain"
	"token-scout/internal/ingestion"
	"token-scout/internal/pipeline"
	"token-scout/internal/provider"
	"token-scout/internal/ratelimit"
)

func main() {
	loadEnvFile()

	snapshotPath := flag.String("snapshot", "", "Path to a TokenSnapshot JSON file (use - for stdin)")
	mint := flag.String("mint", "", "Mint address to look up live market data for (alternative to --snapshot)")
	groqKey := flag.String("groq-api-key", os.Getenv("GROQ_API_KEY"), "Groq API key")
	geminiKey := flag.String("gemini-api-key", os.Getenv("GEMINI_API_KEY"), "Gemini API key")
	format := flag.String("format", "markdown", "Output format: markdown or json")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall evaluation timeout")

	flag.Parse()

	logger := log.New(os.Stderr, "[evaluate] ", log.LstdFlags)

	if *snapshotPath == "" && *mint == "" {
		logger.Fatal("one of --snapshot or --mint is required")
	}
	if *groqKey == "" || *geminiKey == "" {
		logger.Fatal("--groq-api-key and --gemini-api-key are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	limiter := ratelimit.New(map[string]ratelimit.Config{
		"groq:chat":         {MaxRequests: 30, Window: time.Minute},
		"gemini:chat":       {MaxRequests: 15, Window: time.Minute},
		"dexscreener:pairs": {MaxRequests: 300, Window: time.Minute},
	}, ratelimit.WithLogger(logger))

	snapshot, err := loadSnapshot(ctx, *snapshotPath, *mint, limiter, logger)
	if err != nil {
		logger.Fatalf("Load snapshot: %v", err)
	}

	groq := provider.NewGroqAdapter(*groqKey, limiter)
	gemini := provider.NewGeminiAdapter(*geminiKey, limiter)
	router := consensus.NewRouter(groq, gemini, consensus.DefaultConfig(), logger)
	engine := decision.NewEngine(decision.DefaultCriteria())
	evaluator := pipeline.NewEvaluator(router, engine, logger)

	rec, err := evaluator.Evaluate(ctx, snapshot)
	if err != nil {
		logger.Fatalf("Evaluate: %v", err)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			logger.Fatalf("Encode result: %v", err)
		}
	case "markdown":
		fmt.Print(decision.RenderMarkdown(rec))
	default:
		logger.Fatalf("Unknown format %q (want markdown or json)", *format)
	}
}

// loadSnapshot reads the snapshot from a file or builds one from live
// market data.
func loadSnapshot(ctx context.Context, path, mint string, limiter *ratelimit.Limiter, logger *log.Logger) (*domain.TokenSnapshot, error) {
	if path != "" {
		var data []byte
		var err error
		if path == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, err
		}

		var snapshot domain.TokenSnapshot
		if err := json.Unmarshal(data, &snapshot); err != nil {
			return nil, fmt.Errorf("parse snapshot: %w", err)
		}
		return &snapshot, nil
	}

	if _, err := domain.ValidateMint(mint); err != nil {
		return nil, err
	}

	dex := ingestion.NewDexScreenerClient(limiter)
	collector := ingestion.NewCollector(nil, dex, nil, logger)
	return collector.BuildSnapshot(ctx, ingestion.LaunchEvent{
		Mint:        mint,
		TimestampMs: time.Now().UnixMilli(),
	})
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
