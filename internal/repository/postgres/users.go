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

var userColumns = []string{
	"id",
	"email",
	"password_hash",
	"name",
	"avatar_url",
	"email_verified",
	"created_at",
	"updated_at",
	"deleted_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance executing within the provided transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert("users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			optionalString(user.PasswordHash),
			user.Name,
			optionalString(user.AvatarURL),
			user.EmailVerified,
			user.CreatedAt,
			user.UpdatedAt,
			optionalTime(user.DeletedAt),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return classifyError("insert user", err)
	}

	return nil
}

// GetByID retrieves a non-deleted user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"id": id}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByEmail retrieves a non-deleted user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	stmt, args, err := r.builder.Select(userColumns...).
		From("users").
		Where(squirrel.Eq{"email": email}).
		Where("deleted_at IS NULL").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by email sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// EmailExists reports whether a non-deleted user already claims the email.
func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From("users").
		Where(squirrel.Eq{"email": email}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build email exists sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return false, classifyError("count users by email", err)
	}

	return count > 0, nil
}

// UpdatePassword replaces the password hash and bumps updated_at. It returns
// false when the user does not exist or is deleted.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("users").
		Set("password_hash", passwordHash).
		Set("updated_at", changedAt.UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, classifyError("update password", err)
	}

	return ct.RowsAffected() > 0, nil
}

// VerifyEmail marks the user's email address as verified.
func (r *UserRepository) VerifyEmail(ctx context.Context, id string) (bool, error) {
	stmt, args, err := r.builder.Update("users").
		Set("email_verified", true).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build verify email sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, classifyError("verify email", err)
	}

	return ct.RowsAffected() > 0, nil
}

// UpdateProfile updates display fields and returns the refreshed row.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, name, avatarURL *string) (*domain.User, error) {
	query := r.builder.Update("users").
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		Where("deleted_at IS NULL")

	if name != nil {
		query = query.Set("name", *name)
	}
	if avatarURL != nil {
		query = query.Set("avatar_url", *avatarURL)
	}

	stmt, args, err := query.Suffix("RETURNING " + joinColumns(userColumns)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update profile sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// SoftDelete stamps deleted_at, hiding the user from every lookup.
func (r *UserRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	stmt, args, err := r.builder.Update("users").
		Set("deleted_at", now).
		Set("updated_at", now).
		Where(squirrel.Eq{"id": id}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build soft delete user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, classifyError("soft delete user", err)
	}

	return ct.RowsAffected() > 0, nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user         domain.User
		passwordHash sql.NullString
		avatarURL    sql.NullString
		deletedAt    sql.NullTime
	)

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&user.Name,
		&avatarURL,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
		&deletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, classifyError("scan user", err)
	}

	user.PasswordHash = nullableStringPtr(passwordHash)
	user.AvatarURL = nullableStringPtr(avatarURL)
	user.DeletedAt = nullableTimePtr(deletedAt)

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
