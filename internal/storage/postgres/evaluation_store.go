package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-scout/internal/domain"
	"token-scout/internal/storage"
)

// EvaluationStore implements storage.EvaluationStore using PostgreSQL.
//
// Scalar columns carry the fields used in WHERE/ORDER BY clauses; the
// structured payloads (snapshot, consensus, breakdown, risk, decision)
// are stored as JSONB documents.
type EvaluationStore struct {
	pool *Pool
}

// NewEvaluationStore creates a new EvaluationStore.
func NewEvaluationStore(pool *Pool) *EvaluationStore {
	return &EvaluationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EvaluationStore = (*EvaluationStore)(nil)

const evaluationColumns = `
	evaluation_id, mint, symbol,
	snapshot, consensus, breakdown, risk, decision,
	final_score, buy, evaluated_at, created_at
`

// Insert adds a new record. Returns ErrDuplicateKey if evaluation_id exists.
func (s *EvaluationStore) Insert(ctx context.Context, rec *domain.EvaluationRecord) error {
	if rec == nil || rec.EvaluationID == "" {
		return storage.ErrInvalidInput
	}

	snapshot, consensus, breakdown, risk, decision, err := marshalPayloads(rec)
	if err != nil {
		return fmt.Errorf("marshal evaluation payloads: %w", err)
	}

	query := `
		INSERT INTO evaluations (
			evaluation_id, mint, symbol,
			snapshot, consensus, breakdown, risk, decision,
			final_score, buy, evaluated_at, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11, $12
		)
	`

	start := time.Now()
	_, err = s.pool.Exec(ctx, query,
		rec.EvaluationID, rec.Mint, rec.Symbol,
		snapshot, consensus, breakdown, risk, decision,
		rec.Breakdown.FinalScore, rec.Decision.Buy, rec.EvaluatedAt, rec.CreatedAt,
	)
	observe("insert_evaluation", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *EvaluationStore) GetByID(ctx context.Context, evaluationID string) (*domain.EvaluationRecord, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE evaluation_id = $1`

	start := time.Now()
	row := s.pool.QueryRow(ctx, query, evaluationID)
	rec, err := scanEvaluation(row)
	observe("get_evaluation_by_id", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get evaluation by id: %w", err)
	}
	return rec, nil
}

// GetByMint retrieves all records for a mint, ordered by evaluated_at ASC.
func (s *EvaluationStore) GetByMint(ctx context.Context, mint string) ([]*domain.EvaluationRecord, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluations
		WHERE mint = $1
		ORDER BY evaluated_at ASC, evaluation_id ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, mint)
	if err != nil {
		observe("get_evaluations_by_mint", start, err)
		return nil, fmt.Errorf("get evaluations by mint: %w", err)
	}
	defer rows.Close()

	recs, err := scanEvaluations(rows)
	observe("get_evaluations_by_mint", start, err)
	return recs, err
}

// GetRecent retrieves the latest records, ordered by evaluated_at DESC.
func (s *EvaluationStore) GetRecent(ctx context.Context, limit int) ([]*domain.EvaluationRecord, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluations
		ORDER BY evaluated_at DESC, evaluation_id ASC
		LIMIT $1
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		observe("get_recent_evaluations", start, err)
		return nil, fmt.Errorf("get recent evaluations: %w", err)
	}
	defer rows.Close()

	recs, err := scanEvaluations(rows)
	observe("get_recent_evaluations", start, err)
	return recs, err
}

// marshalPayloads serializes the structured parts of a record for JSONB columns.
func marshalPayloads(rec *domain.EvaluationRecord) (snapshot, consensus, breakdown, risk, decision []byte, err error) {
	if snapshot, err = json.Marshal(rec.Snapshot); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if consensus, err = json.Marshal(rec.Consensus); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if breakdown, err = json.Marshal(rec.Breakdown); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if risk, err = json.Marshal(rec.Risk); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if decision, err = json.Marshal(rec.Decision); err != nil {
		return nil, nil, nil, nil, nil, err
	}
	return snapshot, consensus, breakdown, risk, decision, nil
}

// scanEvaluation scans a single row into an EvaluationRecord.
func scanEvaluation(row pgx.Row) (*domain.EvaluationRecord, error) {
	var rec domain.EvaluationRecord
	var snapshot, consensus, breakdown, risk, decision []byte
	var finalScore int
	var buy bool

	err := row.Scan(
		&rec.EvaluationID, &rec.Mint, &rec.Symbol,
		&snapshot, &consensus, &breakdown, &risk, &decision,
		&finalScore, &buy, &rec.EvaluatedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalPayloads(&rec, snapshot, consensus, breakdown, risk, decision); err != nil {
		return nil, err
	}
	return &rec, nil
}

// scanEvaluations scans multiple rows into a slice of EvaluationRecord.
func scanEvaluations(rows pgx.Rows) ([]*domain.EvaluationRecord, error) {
	var recs []*domain.EvaluationRecord

	for rows.Next() {
		var rec domain.EvaluationRecord
		var snapshot, consensus, breakdown, risk, decision []byte
		var finalScore int
		var buy bool

		err := rows.Scan(
			&rec.EvaluationID, &rec.Mint, &rec.Symbol,
			&snapshot, &consensus, &breakdown, &risk, &decision,
			&finalScore, &buy, &rec.EvaluatedAt, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}

		if err := unmarshalPayloads(&rec, snapshot, consensus, breakdown, risk, decision); err != nil {
			return nil, fmt.Errorf("decode evaluation payloads: %w", err)
		}
		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation rows: %w", err)
	}

	return recs, nil
}

func unmarshalPayloads(rec *domain.EvaluationRecord, snapshot, consensus, breakdown, risk, decision []byte) error {
	if err := json.Unmarshal(snapshot, &rec.Snapshot); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := json.Unmarshal(consensus, &rec.Consensus); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}
	if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
		return fmt.Errorf("breakdown: %w", err)
	}
	if err := json.Unmarshal(risk, &rec.Risk); err != nil {
		return fmt.Errorf("risk: %w", err)
	}
	if err := json.Unmarshal(decision, &rec.Decision); err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	return nil
}
