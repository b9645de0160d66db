package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/core/port"
)

// LoginAttemptRepository implements port.LoginAttemptRepository on the
// login_attempts audit table.
type LoginAttemptRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewLoginAttemptRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewLoginAttemptRepository(exec pgExecutor) *LoginAttemptRepository {
	repo := &LoginAttemptRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *LoginAttemptRepository) WithTx(tx pgx.Tx) *LoginAttemptRepository {
	if tx == nil {
		return r
	}
	return &LoginAttemptRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// RecordAttempt appends one attempt row. Attempts are recorded for unknown
// emails too, so probing a nonexistent account still counts toward lockout.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt domain.LoginAttempt) error {
	stmt, args, err := r.builder.Insert("login_attempts").
		Columns("id", "email", "success", "ip", "user_agent", "created_at").
		Values(
			attempt.ID,
			attempt.Email,
			attempt.Success,
			optionalString(attempt.IP),
			optionalString(attempt.UserAgent),
			attempt.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert login attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return classifyError("insert login attempt", err)
	}

	return nil
}

// FailureWindow returns the failed-attempt count and the oldest qualifying
// failure timestamp in one round trip. A zero count yields the zero time.
func (r *LoginAttemptRepository) FailureWindow(ctx context.Context, email string, window time.Duration) (int, time.Time, error) {
	cutoff := time.Now().UTC().Add(-window)

	stmt, args, err := r.builder.Select("COUNT(*)", "MIN(created_at)").
		From("login_attempts").
		Where(squirrel.Eq{"email": email, "success": false}).
		Where(squirrel.GtOrEq{"created_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("build failure window sql: %w", err)
	}

	var (
		count  int64
		oldest sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count, &oldest); err != nil {
		return 0, time.Time{}, classifyError("query failure window", err)
	}

	if !oldest.Valid {
		return int(count), time.Time{}, nil
	}

	return int(count), oldest.Time, nil
}

// CleanupOldAttempts deletes attempt rows older than the cutoff.
func (r *LoginAttemptRepository) CleanupOldAttempts(ctx context.Context, olderThan time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("login_attempts").
		Where(squirrel.Lt{"created_at": olderThan.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup login attempts sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, classifyError("cleanup login attempts", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.LoginAttemptRepository = (*LoginAttemptRepository)(nil)
