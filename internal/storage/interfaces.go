package storage

import (
	"context"
	"time"

	"token-scout/internal/domain"
)

// EvaluationStore provides access to evaluations storage.
type EvaluationStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if evaluation_id exists.
	Insert(ctx context.Context, rec *domain.EvaluationRecord) error

	// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, evaluationID string) (*domain.EvaluationRecord, error)

	// GetByMint retrieves all records for a mint, ordered by evaluated_at ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.EvaluationRecord, error)

	// GetRecent retrieves the latest records, ordered by evaluated_at DESC.
	GetRecent(ctx context.Context, limit int) ([]*domain.EvaluationRecord, error)
}

// ScoreHistoryStore provides access to the append-only score history.
type ScoreHistoryStore interface {
	// Append adds score points. Duplicates are not checked; the
	// history is analytical, not authoritative.
	Append(ctx context.Context, points []*domain.ScorePoint) error

	// GetByMint retrieves all points for a mint, ordered by timestamp ASC.
	GetByMint(ctx context.Context, mint string) ([]*domain.ScorePoint, error)
}

// KVStore is a key-value interface with TTL semantics, used to back
// rate-limiter counters in multi-process deployments.
type KVStore interface {
	// Get retrieves a value. The bool reports presence (expired keys
	// are absent).
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a value with a TTL. Zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments a counter, creating it at 1 with the
	// TTL if absent or expired. Returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
