package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/core/port"
	"github.com/donmccarty/braidmgr-auth/internal/repository"
)

var oauthAccountColumns = []string{
	"id",
	"user_id",
	"provider",
	"provider_user_id",
	"email",
	"created_at",
}

// OAuthAccountRepository implements port.OAuthRepository on the
// oauth_accounts table.
type OAuthAccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOAuthAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewOAuthAccountRepository(exec pgExecutor) *OAuthAccountRepository {
	repo := &OAuthAccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *OAuthAccountRepository) WithTx(tx pgx.Tx) *OAuthAccountRepository {
	if tx == nil {
		return r
	}
	return &OAuthAccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a provider link. A duplicate (provider, provider_user_id)
// pair surfaces as repository.ErrConflict.
func (r *OAuthAccountRepository) Create(ctx context.Context, account domain.OAuthAccount) error {
	stmt, args, err := r.builder.Insert("oauth_accounts").
		Columns(oauthAccountColumns...).
		Values(
			account.ID,
			account.UserID,
			account.Provider,
			account.ProviderUserID,
			optionalString(account.Email),
			account.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert oauth account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return classifyError("insert oauth account", err)
	}

	return nil
}

// GetByProvider looks up the link for a provider identity.
func (r *OAuthAccountRepository) GetByProvider(ctx context.Context, provider domain.OAuthProvider, providerUserID string) (*domain.OAuthAccount, error) {
	stmt, args, err := r.builder.Select(oauthAccountColumns...).
		From("oauth_accounts").
		Where(squirrel.Eq{"provider": provider, "provider_user_id": providerUserID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select oauth account sql: %w", err)
	}

	return scanOAuthAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// ListForUser returns every provider link for the user, oldest first.
func (r *OAuthAccountRepository) ListForUser(ctx context.Context, userID string) ([]domain.OAuthAccount, error) {
	stmt, args, err := r.builder.Select(oauthAccountColumns...).
		From("oauth_accounts").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list oauth accounts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, classifyError("query oauth accounts", err)
	}
	defer rows.Close()

	accounts := make([]domain.OAuthAccount, 0)
	for rows.Next() {
		var (
			account domain.OAuthAccount
			email   sql.NullString
		)
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.Provider,
			&account.ProviderUserID,
			&email,
			&account.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan oauth account: %w", err)
		}
		account.Email = nullableStringPtr(email)
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oauth accounts: %w", err)
	}

	return accounts, nil
}

// HasProvider reports whether the user already linked the given provider.
func (r *OAuthAccountRepository) HasProvider(ctx context.Context, userID string, provider domain.OAuthProvider) (bool, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("oauth_accounts").
		Where(squirrel.Eq{"user_id": userID, "provider": provider}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build has provider sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return false, classifyError("count oauth accounts", err)
	}

	return count > 0, nil
}

// Delete removes a single provider link for the user.
func (r *OAuthAccountRepository) Delete(ctx context.Context, userID string, provider domain.OAuthProvider) error {
	stmt, args, err := r.builder.Delete("oauth_accounts").
		Where(squirrel.Eq{"user_id": userID, "provider": provider}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete oauth account sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return classifyError("delete oauth account", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteForUser removes every provider link for the user.
func (r *OAuthAccountRepository) DeleteForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Delete("oauth_accounts").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete oauth accounts sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, classifyError("delete oauth accounts", err)
	}

	return int(ct.RowsAffected()), nil
}

func scanOAuthAccount(row pgx.Row) (*domain.OAuthAccount, error) {
	var (
		account domain.OAuthAccount
		email   sql.NullString
	)

	if err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.ProviderUserID,
		&email,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classifyError("scan oauth account", err)
	}

	account.Email = nullableStringPtr(email)

	return &account, nil
}

var _ port.OAuthRepository = (*OAuthAccountRepository)(nil)
