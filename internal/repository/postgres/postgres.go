// Package postgres implements the persistence ports on PostgreSQL via pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donmccarty/braidmgr-auth/internal/repository"
)

// pgExecutor is satisfied by *pgxpool.Pool, pgx.Tx, and pgxmock, so every
// repository can run against the pool, inside a transaction, or under test.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txBeginner is the subset of *pgxpool.Pool needed to open transactions.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store wraps a pgx pool for the repositories.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects a pool against the supplied DSN.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewStoreFromPool wraps an already-configured pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for repository construction.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Close releases resources associated with the store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func optionalString(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}

func optionalTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return value.UTC()
}

func nullableStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullableTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func joinColumns(columns []string) string {
	return strings.Join(columns, ", ")
}

// classifyError maps driver errors onto the repository sentinels while
// preserving the original error for logging.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}

	// A storage deadline is a transient condition for the caller, same as
	// a dropped connection.
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %v", op, repository.ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w", op, repository.ErrConflict)
		case pgErr.Code == "23503":
			return fmt.Errorf("%s: %w", op, repository.ErrForeignKey)
		case pgErr.Code == "23514":
			return fmt.Errorf("%s: %w", op, repository.ErrCheckViolation)
		case strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%s: %w", op, repository.ErrUnavailable)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
