package postgres

import (
	"context"
	"fmt"
	"time"

	"token-scout/internal/storage"
)

// KVStore implements storage.KVStore using PostgreSQL.
//
// Expiry is lazy: expired rows are treated as absent by every read and
// overwritten by writes, so no background sweeper is needed.
type KVStore struct {
	pool *Pool
}

// NewKVStore creates a new KVStore.
func NewKVStore(pool *Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Compile-time interface check.
var _ storage.KVStore = (*KVStore)(nil)

// Get retrieves a value. Expired keys are absent.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `
		SELECT value FROM kv_entries
		WHERE key = $1 AND (expires_at_ms = 0 OR expires_at_ms > $2)
	`

	var value string
	start := time.Now()
	err := s.pool.QueryRow(ctx, query, key, start.UnixMilli()).Scan(&value)
	observe("kv_get", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get kv entry: %w", err)
	}
	return value, true, nil
}

// Set stores a value with a TTL. Zero TTL means no expiry.
func (s *KVStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	query := `
		INSERT INTO kv_entries (key, value, expires_at_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at_ms = EXCLUDED.expires_at_ms
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query, key, value, expiryMs(ttl))
	observe("kv_set", start, err)
	if err != nil {
		return fmt.Errorf("set kv entry: %w", err)
	}
	return nil
}

// Incr atomically increments a counter, creating it at 1 with the TTL
// if absent or expired.
func (s *KVStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	// The CASE resets expired counters in the same statement, keeping
	// the increment a single round trip.
	query := `
		INSERT INTO kv_entries (key, value, expires_at_ms)
		VALUES ($1, '1', $2)
		ON CONFLICT (key) DO UPDATE
		SET value = CASE
				WHEN kv_entries.expires_at_ms <> 0 AND kv_entries.expires_at_ms <= $3 THEN '1'
				ELSE (kv_entries.value::bigint + 1)::text
			END,
			expires_at_ms = CASE
				WHEN kv_entries.expires_at_ms <> 0 AND kv_entries.expires_at_ms <= $3 THEN $2::bigint
				ELSE kv_entries.expires_at_ms
			END
		RETURNING value::bigint
	`

	var n int64
	start := time.Now()
	err := s.pool.QueryRow(ctx, query, key, expiryMs(ttl), start.UnixMilli()).Scan(&n)
	observe("kv_incr", start, err)
	if err != nil {
		return 0, fmt.Errorf("increment kv entry: %w", err)
	}
	return n, nil
}

// expiryMs converts a TTL into an absolute unix-ms deadline, 0 for no expiry.
func expiryMs(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixMilli()
}
