package port

import (
	"context"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
)

// OAuthRepository persists links between users and external identity
// providers. A (provider, provider_user_id) pair maps to at most one user.
type OAuthRepository interface {
	Create(ctx context.Context, account domain.OAuthAccount) error
	GetByProvider(ctx context.Context, provider domain.OAuthProvider, providerUserID string) (*domain.OAuthAccount, error)
	ListForUser(ctx context.Context, userID string) ([]domain.OAuthAccount, error)
	HasProvider(ctx context.Context, userID string, provider domain.OAuthProvider) (bool, error)
	Delete(ctx context.Context, userID string, provider domain.OAuthProvider) error
	DeleteForUser(ctx context.Context, userID string) (int, error)
}
