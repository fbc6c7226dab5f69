package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-scout/internal/domain"
	"token-scout/internal/observability"
	"token-scout/internal/storage"
)

// ScoreHistoryStore implements storage.ScoreHistoryStore using ClickHouse.
type ScoreHistoryStore struct {
	conn *Conn
}

// NewScoreHistoryStore creates a new ScoreHistoryStore.
func NewScoreHistoryStore(conn *Conn) *ScoreHistoryStore {
	return &ScoreHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// Append adds score points. The history is analytical; duplicates are
// left to the ReplacingMergeTree engine rather than checked here.
func (s *ScoreHistoryStore) Append(ctx context.Context, points []*domain.ScorePoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("append_score_history", start, err) }()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_history (
			evaluation_id, mint, symbol, final_score,
			confidence, prob_delta, risk_level, buy, timestamp_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		var buy uint8
		if p.Buy {
			buy = 1
		}
		err = batch.Append(
			p.EvaluationID, p.Mint, p.Symbol, int32(p.FinalScore),
			p.Confidence, p.ProbDelta, string(p.RiskLevel), buy, uint64(p.TimestampMs),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all points for a mint, ordered by timestamp ASC.
func (s *ScoreHistoryStore) GetByMint(ctx context.Context, mint string) (points []*domain.ScorePoint, err error) {
	start := time.Now()
	defer func() { observe("get_score_history_by_mint", start, err) }()

	query := `
		SELECT evaluation_id, mint, symbol, final_score,
		       confidence, prob_delta, risk_level, buy, timestamp_ms
		FROM score_history
		WHERE mint = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query score history by mint: %w", err)
	}
	defer rows.Close()

	return scanScorePoints(rows)
}

// observe records query timing and failures for one store call.
func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}

// chRows is the subset of driver.Rows used by scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanScorePoints scans multiple rows.
func scanScorePoints(rows chRows) ([]*domain.ScorePoint, error) {
	var points []*domain.ScorePoint

	for rows.Next() {
		var p domain.ScorePoint
		var finalScore int32
		var riskLevel string
		var buy uint8
		var timestampMs uint64

		err := rows.Scan(
			&p.EvaluationID, &p.Mint, &p.Symbol, &finalScore,
			&p.Confidence, &p.ProbDelta, &riskLevel, &buy, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score history row: %w", err)
		}

		p.FinalScore = int(finalScore)
		p.RiskLevel = domain.RiskLevel(riskLevel)
		p.Buy = buy != 0
		p.TimestampMs = int64(timestampMs)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history rows: %w", err)
	}

	return points, nil
}
