package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"token-scout/internal/observability"
)

// Pool wraps pgxpool.Pool so the stores depend on one injectable type.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a connection pool for the given DSN and verifies it
// with a ping before handing it out.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Close releases the underlying pool.
func (p *Pool) Close() {
	p.Pool.Close()
}

const (
	// unique_violation, raised on evaluation_id collisions.
	pgErrUniqueViolation = "23505"
)

// isDuplicateKeyError matches unique-constraint violations.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}

	return false
}

// isNotFoundError matches the no-rows result of a lookup.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// observe records query timing and failures for one store call.
// An absent row is a lookup outcome, not a query failure.
func observe(operation string, start time.Time, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
