package port

import (
	"context"
	"time"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
)

// UserRepository exposes persistence behavior for user accounts.
// Lookups consider only rows that are not soft-deleted; email matching is
// case-insensitive.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) (bool, error)
	VerifyEmail(ctx context.Context, id string) (bool, error)
	UpdateProfile(ctx context.Context, id string, name, avatarURL *string) (*domain.User, error)
	SoftDelete(ctx context.Context, id string) (bool, error)
}
