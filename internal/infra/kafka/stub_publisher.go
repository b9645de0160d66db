package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/core/port"
	"github.com/donmccarty/braidmgr-auth/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Used in
// development when no broker is reachable. Reset tokens are masked here
// because stub output lands in the log stream.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload map[string]any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	for key, value := range payload {
		if s, ok := value.(string); ok {
			payload[key] = logger.SanitizeValue(key, s)
		}
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs auth.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent("auth.user.registered", event.UserID, event.RegisteredAt, map[string]any{
		"user_id":       event.UserID,
		"email":         event.Email,
		"registered_at": event.RegisteredAt,
		"method":        event.Method,
	})
	return nil
}

// PublishUserLoggedIn logs auth.user.logged_in events.
func (p *StubPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	payload := map[string]any{
		"user_id":      event.UserID,
		"email":        event.Email,
		"logged_in_at": event.LoggedInAt,
	}
	if event.IPAddress != nil {
		payload["ip_address"] = *event.IPAddress
	}
	p.logEvent("auth.user.logged_in", event.UserID, event.LoggedInAt, payload)
	return nil
}

// PublishPasswordResetRequested logs auth.user.password.reset_requested
// events with the raw token masked.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent("auth.user.password.reset_requested", event.UserID, event.RequestedAt, map[string]any{
		"user_id":            event.UserID,
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"token":              event.Token,
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
	})
	return nil
}

// PublishPasswordChanged logs auth.user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent("auth.user.password.changed", event.UserID, event.ChangedAt, map[string]any{
		"user_id":        event.UserID,
		"changed_at":     event.ChangedAt,
		"tokens_revoked": event.TokensRevoked,
	})
	return nil
}

// PublishRefreshTokensRevoked logs auth.tokens.revoked events.
func (p *StubPublisher) PublishRefreshTokensRevoked(_ context.Context, event domain.RefreshTokensRevokedEvent) error {
	p.logEvent("auth.tokens.revoked", event.UserID, event.RevokedAt, map[string]any{
		"user_id":    event.UserID,
		"revoked_at": event.RevokedAt,
		"count":      event.Count,
		"reason":     event.Reason,
	})
	return nil
}

// PublishOAuthLinked logs auth.oauth.linked events.
func (p *StubPublisher) PublishOAuthLinked(_ context.Context, event domain.OAuthLinkedEvent) error {
	p.logEvent("auth.oauth.linked", event.UserID, event.LinkedAt, map[string]any{
		"user_id":   event.UserID,
		"provider":  event.Provider,
		"linked_at": event.LinkedAt,
		"new_user":  event.NewUser,
	})
	return nil
}

// Close is a no-op for the stub.
func (p *StubPublisher) Close() error {
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
