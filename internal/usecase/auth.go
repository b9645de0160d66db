package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

const refreshSecretBytes = 32

// ClientMeta carries per-request client attribution recorded alongside
// attempts and tokens.
type ClientMeta struct {
	IP        *string
	UserAgent *string
}

// TokenPair is the credential set handed to a client after a successful
// authentication.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult bundles the authenticated user with freshly issued tokens.
// User.PasswordHash is always nil.
type AuthResult struct {
	User   domain.User
	Tokens TokenPair
}

// AuthService implements registration, password login with lockout,
// refresh token rotation and OAuth sign-in.
type AuthService struct {
	cfg       config.AuthSettings
	users     port.UserRepository
	tokens    port.TokenRepository
	attempts  port.LoginAttemptRepository
	oauth     port.OAuthRepository
	hasher    *security.PasswordHasher
	issuer    *security.TokenIssuer
	validator *security.PasswordValidator
	events    port.EventPublisher
	metrics   *metrics.AuthMetrics
	logger    *zap.Logger

	now func() time.Time
}

// NewAuthService wires the authentication use cases.
func NewAuthService(
	cfg config.AuthSettings,
	users port.UserRepository,
	tokens port.TokenRepository,
	attempts port.LoginAttemptRepository,
	oauth port.OAuthRepository,
	hasher *security.PasswordHasher,
	issuer *security.TokenIssuer,
	validator *security.PasswordValidator,
	events port.EventPublisher,
	m *metrics.AuthMetrics,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		cfg:       cfg,
		users:     users,
		tokens:    tokens,
		attempts:  attempts,
		oauth:     oauth,
		hasher:    hasher,
		issuer:    issuer,
		validator: validator,
		events:    events,
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

// NormalizeEmail lowercases and trims an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a password-backed account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password, name string, meta ClientMeta) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name is required")
	}
	if err := s.validator.Validate(password); err != nil {
		return nil, err
	}

	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &hash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Registrations.Inc()
	}
	s.publishRegistered(ctx, user, "password")
	s.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)))

	return s.result(user, pair), nil
}

// Login authenticates an email/password pair.
//
// The lockout window is evaluated before any credential comparison, so a
// locked account answers identically whether or not the submitted password
// is correct. Failures for unknown emails are recorded too; otherwise the
// presence of lockout would betray which emails exist.
func (s *AuthService) Login(ctx context.Context, email, password string, meta ClientMeta) (*AuthResult, error) {
	email = NormalizeEmail(email)
	now := s.now().UTC()

	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	failed, oldest, err := s.attempts.FailureWindow(ctx, email, s.cfg.LockoutWindow)
	if err != nil {
		return nil, fmt.Errorf("check lockout: %w", err)
	}
	if failed >= s.cfg.MaxLoginAttempts {
		retryAfter := oldest.Add(s.cfg.LockoutWindow).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		if s.metrics != nil {
			s.metrics.Lockouts.Inc()
		}
		s.logger.Warn("login rejected by lockout",
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("recent_failures", failed),
			zap.Duration("retry_after", retryAfter))
		return nil, &LockoutError{RetryAfter: retryAfter}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user == nil || !user.HasPassword() {
		s.recordAttempt(ctx, email, false, meta, now)
		if s.metrics != nil {
			s.metrics.Logins.WithLabelValues("failure").Inc()
		}
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(password, *user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordAttempt(ctx, email, false, meta, now)
		if s.metrics != nil {
			s.metrics.Logins.WithLabelValues("failure").Inc()
		}
		return nil, ErrInvalidCredentials
	}

	s.recordAttempt(ctx, email, true, meta, now)

	pair, err := s.issueTokenPair(ctx, *user, meta)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Logins.WithLabelValues("success").Inc()
	}
	s.publishLoggedIn(ctx, *user, meta)
	s.logger.Info("user logged in",
		zap.String("user_id", user.ID),
		zap.String("email", logger.MaskEmail(user.Email)))

	return s.result(*user, pair), nil
}

// Refresh exchanges a valid refresh token for a new token pair. The
// presented token is revoked as part of the exchange; a refresh token is
// single-use.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*AuthResult, error) {
	id, secret, ok := security.SplitRefreshToken(refreshToken)
	if !ok {
		s.countRefresh("failure")
		return nil, ErrInvalidRefreshToken
	}

	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	stored, err := s.tokens.GetRefreshToken(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countRefresh("failure")
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if !security.VerifyTokenHash(secret, stored.TokenHash) {
		s.countRefresh("failure")
		return nil, ErrInvalidRefreshToken
	}
	if stored.IsRevoked() {
		s.countRefresh("failure")
		return nil, ErrInvalidRefreshToken
	}
	now := s.now().UTC()
	if stored.IsExpired(now) {
		s.countRefresh("expired")
		return nil, ErrExpiredRefreshToken
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countRefresh("failure")
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := s.tokens.RevokeRefreshToken(ctx, stored.ID); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	pair, err := s.issueTokenPair(ctx, *user, meta)
	if err != nil {
		return nil, err
	}

	s.countRefresh("success")
	s.logger.Debug("refresh token rotated",
		zap.String("user_id", user.ID),
		zap.String("old_token_id", stored.ID))

	return s.result(*user, pair), nil
}

// Logout ends a session. When the presented refresh token is identifiable
// and belongs to the user, only that token is revoked; otherwise every
// token the user holds is revoked. Revoking an already-dead token is a
// success, so logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	if id, secret, ok := security.SplitRefreshToken(refreshToken); ok {
		stored, err := s.tokens.GetRefreshToken(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load refresh token: %w", err)
		}
		if stored != nil && stored.UserID == userID && security.VerifyTokenHash(secret, stored.TokenHash) {
			if err := s.tokens.RevokeRefreshToken(ctx, stored.ID); err != nil {
				return fmt.Errorf("revoke refresh token: %w", err)
			}
			s.logger.Debug("refresh token revoked on logout", zap.String("token_id", stored.ID))
			return nil
		}
	}

	// The token cannot be tied to the user; fall back to ending every
	// session rather than leaving an unidentified one alive.
	_, err := s.RevokeAllSessions(ctx, userID, "logout")
	return err
}

// RevokeAllSessions revokes every active refresh token for the user and
// publishes a revocation event. Returns the number revoked.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID, reason string) (int, error) {
	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	count, err := s.tokens.RevokeRefreshTokensForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	if count > 0 {
		s.publishTokensRevoked(ctx, userID, count, reason)
	}
	s.logger.Info("revoked all sessions",
		zap.String("user_id", userID),
		zap.Int("count", count),
		zap.String("reason", reason))
	return count, nil
}

// OAuthAuthenticate signs a user in via a verified external identity and
// returns a token pair. Three shapes are possible: the provider identity is
// already linked (plain login), the email matches an existing account (the
// link is attached), or neither exists (a verified passwordless account is
// created).
func (s *AuthService) OAuthAuthenticate(ctx context.Context, provider domain.OAuthProvider, providerUserID, email, name string, avatarURL *string, meta ClientMeta) (*AuthResult, error) {
	if providerUserID == "" {
		return nil, errors.New("provider user id is required")
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	now := s.now().UTC()

	ctx, cancel := withStorageTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	link, err := s.oauth.GetByProvider(ctx, provider, providerUserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load oauth link: %w", err)
	}

	var user *domain.User
	switch {
	case link != nil:
		user, err = s.users.GetByID(ctx, link.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("load user: %w", err)
		}

	default:
		existing, err := s.users.GetByEmail(ctx, email)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load user: %w", err)
		}

		if existing != nil {
			linked, err := s.oauth.HasProvider(ctx, existing.ID, provider)
			if err != nil {
				return nil, fmt.Errorf("check provider link: %w", err)
			}
			if linked {
				// Same provider, different external identity. Attaching
				// would let a second external account take over this one.
				return nil, ErrOAuthAccountLinked
			}
			if err := s.createLink(ctx, existing.ID, provider, providerUserID, email, now); err != nil {
				return nil, err
			}
			s.publishOAuthLinked(ctx, existing.ID, provider, false, now)
			user = existing
		} else {
			created := domain.User{
				ID:            uuid.NewString(),
				Email:         email,
				Name:          strings.TrimSpace(name),
				AvatarURL:     avatarURL,
				EmailVerified: true,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if created.Name == "" {
				created.Name = email
			}
			if err := s.users.Create(ctx, created); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return nil, ErrEmailTaken
				}
				return nil, fmt.Errorf("create user: %w", err)
			}
			if err := s.createLink(ctx, created.ID, provider, providerUserID, email, now); err != nil {
				return nil, err
			}
			s.publishRegistered(ctx, created, "oauth:"+string(provider))
			s.publishOAuthLinked(ctx, created.ID, provider, true, now)
			user = &created
		}
	}

	pair, err := s.issueTokenPair(ctx, *user, meta)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OAuthLogins.WithLabelValues(string(provider)).Inc()
	}
	s.publishLoggedIn(ctx, *user, meta)
	s.logger.Info("oauth login",
		zap.String("user_id", user.ID),
		zap.String("provider", string(provider)))

	return s.result(*user, pair), nil
}

func (s *AuthService) createLink(ctx context.Context, userID string, provider domain.OAuthProvider, providerUserID, email string, now time.Time) error {
	account := domain.OAuthAccount{
		ID:             uuid.NewString(),
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		Email:          &email,
		CreatedAt:      now,
	}
	if err := s.oauth.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrOAuthAccountLinked
		}
		return fmt.Errorf("create oauth link: %w", err)
	}
	return nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, user domain.User, meta ClientMeta) (TokenPair, error) {
	now := s.now().UTC()

	access, err := s.issuer.IssueAccessToken(security.AccessTokenOptions{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		IssuedAt: now,
		TTL:      s.cfg.AccessTokenTTL,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	secret, err := security.GenerateSecureToken(refreshSecretBytes)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	record := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(secret),
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.tokens.CreateRefreshToken(ctx, record); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     security.ComposeRefreshToken(record.ID, secret),
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *AuthService) result(user domain.User, pair TokenPair) *AuthResult {
	user.PasswordHash = nil
	return &AuthResult{User: user, Tokens: pair}
}

func (s *AuthService) recordAttempt(ctx context.Context, email string, success bool, meta ClientMeta, at time.Time) {
	err := s.attempts.RecordAttempt(ctx, domain.LoginAttempt{
		ID:        uuid.NewString(),
		Email:     email,
		Success:   success,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: at,
	})
	if err != nil {
		s.logger.Error("record login attempt",
			zap.String("email", logger.MaskEmail(email)),
			zap.Error(err))
	}
}

func (s *AuthService) countRefresh(result string) {
	if s.metrics != nil {
		s.metrics.TokenRefreshes.WithLabelValues(result).Inc()
	}
}

func (s *AuthService) publishRegistered(ctx context.Context, user domain.User, method string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishUserRegistered(ctx, domain.UserRegisteredEvent{
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		RegisteredAt: user.CreatedAt,
		Method:       method,
	})
	if err != nil {
		s.logger.Error("publish user registered", zap.Error(err))
	}
}

func (s *AuthService) publishLoggedIn(ctx context.Context, user domain.User, meta ClientMeta) {
	if s.events == nil {
		return
	}
	err := s.events.PublishUserLoggedIn(ctx, domain.UserLoggedInEvent{
		UserID:     user.ID,
		Email:      user.Email,
		LoggedInAt: s.now().UTC(),
		IPAddress:  meta.IP,
	})
	if err != nil {
		s.logger.Error("publish user logged in", zap.Error(err))
	}
}

func (s *AuthService) publishTokensRevoked(ctx context.Context, userID string, count int, reason string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishRefreshTokensRevoked(ctx, domain.RefreshTokensRevokedEvent{
		UserID:    userID,
		RevokedAt: s.now().UTC(),
		Count:     count,
		Reason:    reason,
	})
	if err != nil {
		s.logger.Error("publish tokens revoked", zap.Error(err))
	}
}

func (s *AuthService) publishOAuthLinked(ctx context.Context, userID string, provider domain.OAuthProvider, newUser bool, at time.Time) {
	if s.events == nil {
		return
	}
	err := s.events.PublishOAuthLinked(ctx, domain.OAuthLinkedEvent{
		UserID:   userID,
		Provider: string(provider),
		LinkedAt: at,
		NewUser:  newUser,
	})
	if err != nil {
		s.logger.Error("publish oauth linked", zap.Error(err))
	}
}
