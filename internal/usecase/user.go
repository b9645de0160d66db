package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/core/port"
	"github.com/donmccarty/braidmgr-auth/internal/infra/security"
	"github.com/donmccarty/braidmgr-auth/internal/repository"
)

// UserService covers profile reads and updates plus account removal.
type UserService struct {
	users          port.UserRepository
	tokens         port.TokenRepository
	oauth          port.OAuthRepository
	issuer         *security.TokenIssuer
	events         port.EventPublisher
	logger         *zap.Logger
	storageTimeout time.Duration

	now func() time.Time
}

// NewUserService wires the profile use cases.
func NewUserService(
	users port.UserRepository,
	tokens port.TokenRepository,
	oauth port.OAuthRepository,
	issuer *security.TokenIssuer,
	events port.EventPublisher,
	log *zap.Logger,
	storageTimeout time.Duration,
) *UserService {
	return &UserService{
		users:          users,
		tokens:         tokens,
		oauth:          oauth,
		issuer:         issuer,
		events:         events,
		logger:         log,
		storageTimeout: storageTimeout,
		now:            time.Now,
	}
}

// GetProfile loads the user behind an access token subject. The hash is
// stripped before the user crosses the service boundary.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	ctx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	user.PasswordHash = nil
	return user, nil
}

// VerifyAccessToken decodes and validates an access token, returning its
// claims. Revocation is not consulted; access tokens are short-lived and
// trusted until expiry.
func (s *UserService) VerifyAccessToken(token string) (*security.AccessTokenClaims, error) {
	return s.issuer.DecodeAccessToken(token)
}

// UpdateProfile changes the mutable profile fields. Nil fields are left
// untouched.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, name, avatarURL *string) (*domain.User, error) {
	if name == nil && avatarURL == nil {
		return s.GetProfile(ctx, userID)
	}

	ctx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	user, err := s.users.UpdateProfile(ctx, userID, name, avatarURL)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	user.PasswordHash = nil
	return user, nil
}

// MarkEmailVerified flags the account's email as confirmed.
func (s *UserService) MarkEmailVerified(ctx context.Context, userID string) error {
	ctx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	verified, err := s.users.VerifyEmail(ctx, userID)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	if !verified {
		return ErrUserNotFound
	}
	return nil
}

// ActiveSessions lists the user's live refresh tokens. Hashes stay in the
// rows; they are digests, not bearer material, and callers use the IDs and
// client metadata.
func (s *UserService) ActiveSessions(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	ctx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	sessions, err := s.tokens.ListActiveRefreshTokens(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return sessions, nil
}

// LinkedProviders lists the external identities attached to the account.
func (s *UserService) LinkedProviders(ctx context.Context, userID string) ([]domain.OAuthAccount, error) {
	ctx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	accounts, err := s.oauth.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list oauth links: %w", err)
	}
	return accounts, nil
}

// DeleteAccount soft-deletes the user, detaches provider links and revokes
// every outstanding refresh token.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	ctx, cancel := withStorageTimeout(ctx, s.storageTimeout)
	defer cancel()

	deleted, err := s.users.SoftDelete(ctx, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !deleted {
		return ErrUserNotFound
	}

	if _, err := s.oauth.DeleteForUser(ctx, userID); err != nil {
		return fmt.Errorf("delete oauth links: %w", err)
	}

	if _, err := s.tokens.InvalidateAllPasswordResets(ctx, userID); err != nil {
		return fmt.Errorf("invalidate reset tokens: %w", err)
	}

	revoked, err := s.tokens.RevokeRefreshTokensForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	if s.events != nil && revoked > 0 {
		err = s.events.PublishRefreshTokensRevoked(ctx, domain.RefreshTokensRevokedEvent{
			UserID:    userID,
			RevokedAt: s.now().UTC(),
			Count:     revoked,
			Reason:    "account_deleted",
		})
		if err != nil {
			s.logger.Error("publish tokens revoked", zap.Error(err))
		}
	}

	s.logger.Info("account deleted",
		zap.String("user_id", userID),
		zap.Int("sessions_revoked", revoked))
	return nil
}
