package port

import (
	"context"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
)

// EventPublisher emits auth lifecycle events to the message bus. Publishing
// is best-effort from the caller's point of view: implementations may queue
// asynchronously, and auth flows never fail because an event could not be
// delivered.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishRefreshTokensRevoked(ctx context.Context, event domain.RefreshTokensRevokedEvent) error
	PublishOAuthLinked(ctx context.Context, event domain.OAuthLinkedEvent) error
	Close() error
}
