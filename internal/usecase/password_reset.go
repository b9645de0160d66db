package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/core/port"
	"github.com/donmccarty/braidmgr-auth/internal/infra/config"
	"github.com/donmccarty/braidmgr-auth/internal/infra/logger"
	"github.com/donmccarty/braidmgr-auth/internal/infra/metrics"
	"github.com/donmccarty/braidmgr-auth/internal/infra/security"
	"github.com/donmccarty/braidmgr-auth/internal/repository"
)

const resetSecretBytes = 32

// PasswordResetService implements the reset lifecycle: rate-limited
// request, single-use consumption, and session revocation on success.
type PasswordResetService struct {
	cfg       config.AuthSettings
	users     port.UserRepository
	tokens    port.TokenRepository
	rate      port.RateLimitStore
	hasher    *security.PasswordHasher
	validator *security.PasswordValidator
	events    port.EventPublisher
	metrics   *metrics.AuthMetrics
	logger    *zap.Logger

	now func() time.Time
}

// NewPasswordResetService wires the password reset use cases.
func NewPasswordResetService(
	cfg config.AuthSettings,
	users port.UserRepository,
	tokens port.TokenRepository,
	rate port.RateLimitStore,
	hasher *security.PasswordHasher,
	validator *security.PasswordValidator,
	events port.EventPublisher,
	m *metrics.AuthMetrics,
	log *zap.Logger,
) *PasswordResetService {
	return &PasswordResetService{
		cfg:       cfg,
		users:     users,
		tokens:    tokens,
		rate:      rate,
		hasher:    hasher,
		validator: validator,
		events:    events,
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

// RequestPasswordReset issues a reset token for the account, replacing any
// outstanding one, and publishes it for the mailer.
//
// The call returns nil for unknown emails and for rate-limited requests;
// the response shape never reveals whether an account exists. The raw
// token leaves this process only inside the published event.
func (s *PasswordResetService) RequestPasswordReset(ctx context.Context, email string, meta ClientMeta) error {
	email = NormalizeEmail(email)
	if email == "" {
		return errors.New("email is required")
	}
	now := s.now().UTC()

	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	limited, retryAfter, err := s.checkRequestLimit(ctx, email, now)
	if err != nil {
		return err
	}
	if limited {
		if s.metrics != nil {
			s.metrics.PasswordResets.WithLabelValues("rate_limited").Inc()
		}
		s.logger.Warn("reset request rate limited",
			zap.String("email", logger.MaskEmail(email)),
			zap.Duration("retry_after", retryAfter))
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("reset requested for unknown email",
				zap.String("email", logger.MaskEmail(email)))
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	secret, err := security.GenerateSecureToken(resetSecretBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	record := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ResetTokenTTL),
	}
	replaced, err := s.tokens.ReplacePasswordReset(ctx, record)
	if err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if s.events != nil {
		err = s.events.PublishPasswordResetRequested(ctx, domain.PasswordResetRequestedEvent{
			UserID:            user.ID,
			RequestID:         record.ID,
			RequestedAt:       now,
			Token:             secret,
			MaskedDestination: logger.MaskEmail(user.Email),
			ExpiresAt:         record.ExpiresAt,
			IPAddress:         meta.IP,
		})
		if err != nil {
			s.logger.Error("publish reset requested", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.PasswordResets.WithLabelValues("requested").Inc()
	}
	s.logger.Info("password reset requested",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)),
		zap.Int("invalidated", replaced))
	return nil
}

// ResetPassword redeems a reset token and replaces the account password.
// On success every refresh token for the account is revoked; the caller
// must log in again. No tokens are issued here.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	email = NormalizeEmail(email)

	// Policy violations must not consume the token; the user fixes the
	// password and retries with the same link.
	if err := s.validator.Validate(newPassword); err != nil {
		return err
	}

	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("load user: %w", err)
	}

	now := s.now().UTC()
	record, err := s.tokens.GetValidPasswordReset(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("load reset token: %w", err)
	}
	if !record.IsValid(now) || !security.VerifyTokenHash(token, record.TokenHash) {
		return ErrInvalidResetToken
	}

	// Conditional update; exactly one concurrent redeemer wins.
	if err := s.tokens.ConsumePasswordReset(ctx, record.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	updated, err := s.users.UpdatePassword(ctx, user.ID, hash, now)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if !updated {
		return ErrUserNotFound
	}

	revoked, err := s.tokens.RevokeRefreshTokensForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}

	if s.events != nil {
		err = s.events.PublishPasswordChanged(ctx, domain.PasswordChangedEvent{
			UserID:        user.ID,
			ChangedAt:     now,
			TokensRevoked: revoked,
		})
		if err != nil {
			s.logger.Error("publish password changed", zap.Error(err))
		}
		if revoked > 0 {
			err = s.events.PublishRefreshTokensRevoked(ctx, domain.RefreshTokensRevokedEvent{
				UserID:    user.ID,
				RevokedAt: now,
				Count:     revoked,
				Reason:    "password_reset",
			})
			if err != nil {
				s.logger.Error("publish tokens revoked", zap.Error(err))
			}
		}
	}

	if s.metrics != nil {
		s.metrics.PasswordResets.WithLabelValues("completed").Inc()
	}
	s.logger.Info("password reset completed",
		zap.String("user_id", user.ID),
		zap.Int("sessions_revoked", revoked))
	return nil
}

func (s *PasswordResetService) checkRequestLimit(ctx context.Context, email string, now time.Time) (bool, time.Duration, error) {
	if s.rate == nil || s.cfg.ResetRequestMaxAttempts <= 0 {
		return false, 0, nil
	}
	window := s.cfg.ResetRequestWindow

	if err := s.rate.TrimWindow(ctx, email, window, now); err != nil {
		return false, 0, fmt.Errorf("trim rate window: %w", err)
	}
	count, err := s.rate.CountAttempts(ctx, email, window, now)
	if err != nil {
		return false, 0, fmt.Errorf("count rate window: %w", err)
	}
	if count >= s.cfg.ResetRequestMaxAttempts {
		// The limit lifts when the oldest attempt ages out of the window.
		retryAfter := window
		if oldest, ok, err := s.rate.OldestAttempt(ctx, email, window, now); err != nil {
			s.logger.Error("load oldest rate attempt",
				zap.String("email", logger.MaskEmail(email)),
				zap.Error(err))
		} else if ok {
			retryAfter = oldest.Add(window).Sub(now)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return true, retryAfter, nil
	}
	if err := s.rate.RecordAttempt(ctx, email, now); err != nil {
		return false, 0, fmt.Errorf("record rate attempt: %w", err)
	}
	return false, 0, nil
}
