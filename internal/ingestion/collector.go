package ingestion

import (
	"context"
	"errors"
	"log"
	"time"

	"token-scout/internal/domain"
	"token-scout/internal/observability"
)

// Evaluator is the downstream consumer of collected snapshots.
// Satisfied by pipeline.Evaluator.
type Evaluator interface {
	Evaluate(ctx context.Context, snapshot *domain.TokenSnapshot) (*domain.EvaluationRecord, error)
}

// Collector turns launch events into evaluated token snapshots: it
// validates the mint, enriches the event with market data and hands
// the snapshot to the evaluator.
type Collector struct {
	feed      *LaunchFeed
	dex       *DexScreenerClient
	evaluator Evaluator
	logger    *log.Logger
	clock     func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(feed *LaunchFeed, dex *DexScreenerClient, evaluator Evaluator, logger *log.Logger) *Collector {
	if logger == nil {
		logger = log.Default()
	}
	return &Collector{
		feed:      feed,
		dex:       dex,
		evaluator: evaluator,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes the feed until ctx is canceled or the feed closes.
// Individual token failures are logged and skipped; the loop only
// stops on shutdown.
func (c *Collector) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-c.feed.Events():
			if !ok {
				return nil
			}
			c.handle(ctx, event)
		}
	}
}

func (c *Collector) handle(ctx context.Context, event LaunchEvent) {
	if _, err := domain.ValidateMint(event.Mint); err != nil {
		observability.DefaultMetrics.FeedErrors.WithLabelValues("invalid_mint").Inc()
		c.logger.Printf("[COLLECT] skipping %q: %v", event.Mint, err)
		return
	}

	snapshot, err := c.BuildSnapshot(ctx, event)
	if err != nil {
		if errors.Is(err, ErrNoPairs) {
			c.logger.Printf("[COLLECT] %s has no pairs yet, skipping", event.Mint)
			return
		}
		observability.DefaultMetrics.FeedErrors.WithLabelValues("enrich").Inc()
		c.logger.Printf("[COLLECT] enrich %s: %v", event.Mint, err)
		return
	}

	if _, err := c.evaluator.Evaluate(ctx, snapshot); err != nil {
		c.logger.Printf("[COLLECT] evaluate %s: %v", event.Mint, err)
	}
}

// BuildSnapshot merges a launch event with DexScreener market data.
func (c *Collector) BuildSnapshot(ctx context.Context, event LaunchEvent) (*domain.TokenSnapshot, error) {
	pair, err := c.dex.GetBestPair(ctx, event.Mint)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.TokenSnapshot{
		Mint:         event.Mint,
		Name:         firstNonEmpty(event.Name, pair.Name),
		Symbol:       firstNonEmpty(event.Symbol, pair.Symbol),
		PairAddress:  firstNonEmpty(event.PairAddress, pair.PairAddress),
		PriceUSD:     pair.PriceUSD,
		MarketCapUSD: pair.MarketCapUSD,
		LiquidityUSD: pair.LiquidityUSD,
		Volume24hUSD: pair.Volume24hUSD,
		DiscoveredAt: event.TimestampMs,
	}

	now := c.clock()
	if pair.CreatedAtMs > 0 {
		snapshot.AgeHours = now.Sub(time.UnixMilli(pair.CreatedAtMs)).Hours()
	}

	// Hourly activity from the last-hour window when present, otherwise
	// averaged from the 24h counts.
	h1 := pair.BuysH1 + pair.SellsH1
	if h1 > 0 {
		snapshot.TxnsPerHour = float64(h1)
		snapshot.UniqueBuyers = pair.BuysH1
	} else {
		snapshot.TxnsPerHour = float64(pair.BuysH24+pair.SellsH24) / 24
		snapshot.UniqueBuyers = pair.BuysH24
	}

	buys, sells := pair.BuysH24, pair.SellsH24
	if sells > 0 {
		snapshot.BuyerSellerRatio = float64(buys) / float64(sells)
	} else if buys > 0 {
		snapshot.BuyerSellerRatio = float64(buys)
	}

	snapshot.Normalize()
	observability.DefaultMetrics.SnapshotsEnriched.Inc()
	return snapshot, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
