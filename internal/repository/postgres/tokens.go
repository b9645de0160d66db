package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/core/port"
	"github.com/donmccarty/braidmgr-auth/internal/repository"
)

var refreshTokenColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"ip",
	"user_agent",
	"created_at",
	"expires_at",
	"revoked_at",
}

var passwordResetColumns = []string{
	"id",
	"user_id",
	"token_hash",
	"created_at",
	"expires_at",
	"used_at",
}

// TokenRepository implements port.TokenRepository over the refresh_tokens
// and password_reset_tokens tables.
type TokenRepository struct {
	pool     *pgxpool.Pool
	exec     pgExecutor
	beginner txBeginner
	builder  squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	if beginner, ok := exec.(txBeginner); ok {
		repo.beginner = beginner
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// CreateRefreshToken inserts a refresh token hash for a user.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	stmt, args, err := r.builder.Insert("refresh_tokens").
		Columns(refreshTokenColumns...).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			optionalString(token.IP),
			optionalString(token.UserAgent),
			token.CreatedAt,
			token.ExpiresAt,
			optionalTime(token.RevokedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return classifyError("insert refresh token", err)
	}

	return nil
}

// GetRefreshToken retrieves a refresh token record by identifier.
func (r *TokenRepository) GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(refreshTokenColumns...).
		From("refresh_tokens").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token sql: %w", err)
	}

	return scanRefreshToken(r.exec.QueryRow(ctx, stmt, args...))
}

// ListActiveRefreshTokens returns the user's refresh tokens that are
// neither revoked nor expired, newest first.
func (r *TokenRepository) ListActiveRefreshTokens(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	stmt, args, err := r.builder.Select(refreshTokenColumns...).
		From("refresh_tokens").
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		Where("expires_at > now()").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list refresh tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, classifyError("query refresh tokens", err)
	}
	defer rows.Close()

	tokens := make([]domain.RefreshToken, 0)
	for rows.Next() {
		var (
			token     domain.RefreshToken
			ip        sql.NullString
			userAgent sql.NullString
			revokedAt sql.NullTime
		)
		if err := rows.Scan(
			&token.ID,
			&token.UserID,
			&token.TokenHash,
			&ip,
			&userAgent,
			&token.CreatedAt,
			&token.ExpiresAt,
			&revokedAt,
		); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		token.IP = nullableStringPtr(ip)
		token.UserAgent = nullableStringPtr(userAgent)
		token.RevokedAt = nullableTimePtr(revokedAt)
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}

	return tokens, nil
}

// RevokeRefreshToken marks a single refresh token as revoked. Revoking an
// already-revoked token is a no-op, not an error.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("refresh_tokens").
		Set("revoked_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke refresh token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return classifyError("revoke refresh token", err)
	}

	return nil
}

// RevokeRefreshTokensForUser revokes every active refresh token for a user
// and reports how many were touched.
func (r *TokenRepository) RevokeRefreshTokensForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("refresh_tokens").
		Set("revoked_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, classifyError("revoke refresh tokens", err)
	}

	return int(ct.RowsAffected()), nil
}

// CleanupExpiredRefreshTokens deletes refresh tokens that expired before the cutoff.
func (r *TokenRepository) CleanupExpiredRefreshTokens(ctx context.Context, expiredBefore time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("refresh_tokens").
		Where(squirrel.Lt{"expires_at": expiredBefore.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup refresh tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, classifyError("cleanup refresh tokens", err)
	}

	return int(ct.RowsAffected()), nil
}

// ReplacePasswordReset invalidates every outstanding reset token for the
// user and inserts the new one in a single transaction, so at most one
// reset token is live per user. It returns the number invalidated.
func (r *TokenRepository) ReplacePasswordReset(ctx context.Context, token domain.PasswordResetToken) (int, error) {
	if r.beginner == nil {
		invalidated, err := r.invalidatePasswordResets(ctx, r.exec, token.UserID)
		if err != nil {
			return 0, err
		}
		if err := r.insertPasswordReset(ctx, r.exec, token); err != nil {
			return 0, err
		}
		return invalidated, nil
	}

	tx, err := r.beginner.Begin(ctx)
	if err != nil {
		return 0, classifyError("begin replace password reset", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	invalidated, err := r.invalidatePasswordResets(ctx, tx, token.UserID)
	if err != nil {
		return 0, err
	}

	if err := r.insertPasswordReset(ctx, tx, token); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classifyError("commit replace password reset", err)
	}

	return invalidated, nil
}

// GetValidPasswordReset fetches the user's unconsumed, unexpired reset token.
func (r *TokenRepository) GetValidPasswordReset(ctx context.Context, userID string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.Select(passwordResetColumns...).
		From("password_reset_tokens").
		Where(squirrel.Eq{"user_id": userID}).
		Where("used_at IS NULL").
		Where("expires_at > now()").
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password reset sql: %w", err)
	}

	return scanPasswordReset(r.exec.QueryRow(ctx, stmt, args...))
}

// ConsumePasswordReset marks a reset token as used. The used_at guard makes
// consumption first-wins under concurrent resets.
func (r *TokenRepository) ConsumePasswordReset(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("password_reset_tokens").
		Set("used_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume password reset sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return classifyError("consume password reset", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// InvalidateAllPasswordResets consumes every outstanding reset token for a user.
func (r *TokenRepository) InvalidateAllPasswordResets(ctx context.Context, userID string) (int, error) {
	return r.invalidatePasswordResets(ctx, r.exec, userID)
}

// CleanupExpiredPasswordResets deletes reset tokens that expired before the cutoff.
func (r *TokenRepository) CleanupExpiredPasswordResets(ctx context.Context, expiredBefore time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("password_reset_tokens").
		Where(squirrel.Lt{"expires_at": expiredBefore.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup password resets sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, classifyError("cleanup password resets", err)
	}

	return int(ct.RowsAffected()), nil
}

func (r *TokenRepository) invalidatePasswordResets(ctx context.Context, exec pgExecutor, userID string) (int, error) {
	stmt, args, err := r.builder.Update("password_reset_tokens").
		Set("used_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate password resets sql: %w", err)
	}

	ct, err := exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, classifyError("invalidate password resets", err)
	}

	return int(ct.RowsAffected()), nil
}

func (r *TokenRepository) insertPasswordReset(ctx context.Context, exec pgExecutor, token domain.PasswordResetToken) error {
	stmt, args, err := r.builder.Insert("password_reset_tokens").
		Columns(passwordResetColumns...).
		Values(
			token.ID,
			token.UserID,
			token.TokenHash,
			token.CreatedAt,
			token.ExpiresAt,
			optionalTime(token.UsedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password reset sql: %w", err)
	}

	if _, err := exec.Exec(ctx, stmt, args...); err != nil {
		return classifyError("insert password reset", err)
	}

	return nil
}

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var (
		token     domain.RefreshToken
		ip        sql.NullString
		userAgent sql.NullString
		revokedAt sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&ip,
		&userAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&revokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classifyError("scan refresh token", err)
	}

	token.IP = nullableStringPtr(ip)
	token.UserAgent = nullableStringPtr(userAgent)
	token.RevokedAt = nullableTimePtr(revokedAt)

	return &token, nil
}

func scanPasswordReset(row pgx.Row) (*domain.PasswordResetToken, error) {
	var (
		token  domain.PasswordResetToken
		usedAt sql.NullTime
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classifyError("scan password reset token", err)
	}

	token.UsedAt = nullableTimePtr(usedAt)

	return &token, nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
