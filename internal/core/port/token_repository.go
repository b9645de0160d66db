package port

import (
	"context"
	"time"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
)

// TokenRepository manages refresh token and password reset token records.
// Only hashes of bearer secrets are ever stored.
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error)
	ListActiveRefreshTokens(ctx context.Context, userID string) ([]domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeRefreshTokensForUser(ctx context.Context, userID string) (int, error)
	CleanupExpiredRefreshTokens(ctx context.Context, expiredBefore time.Time) (int, error)

	// ReplacePasswordReset invalidates all outstanding reset tokens for the
	// token's user and stores the new one, atomically with respect to
	// concurrent requests for the same user. Returns the number invalidated.
	ReplacePasswordReset(ctx context.Context, token domain.PasswordResetToken) (int, error)
	GetValidPasswordReset(ctx context.Context, userID string) (*domain.PasswordResetToken, error)
	// ConsumePasswordReset marks a reset token used. It is a conditional
	// update (WHERE used_at IS NULL) so a token can be consumed at most once
	// even under concurrent attempts; an already-used token reports ErrNotFound.
	ConsumePasswordReset(ctx context.Context, id string) error
	InvalidateAllPasswordResets(ctx context.Context, userID string) (int, error)
	CleanupExpiredPasswordResets(ctx context.Context, expiredBefore time.Time) (int, error)
}
