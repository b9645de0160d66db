package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
	"github.com/donmccarty/braidmgr-auth/internal/infra/config"
	"github.com/donmccarty/braidmgr-auth/internal/infra/metrics"
	"github.com/donmccarty/braidmgr-auth/internal/infra/security"
)

func testAuthSettings() config.AuthSettings {
	return config.AuthSettings{
		JWTSecret:               "test-secret",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTL:         168 * time.Hour,
		ResetTokenTTL:           time.Hour,
		MinPasswordLength:       8,
		MaxLoginAttempts:        5,
		LockoutWindow:           30 * time.Minute,
		StorageTimeout:          5 * time.Second,
		ResetRequestMaxAttempts: 3,
		ResetRequestWindow:      time.Hour,
	}
}

func testHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  8,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewPasswordHasher: %v", err)
	}
	return hasher
}

func testIssuer(t *testing.T) *security.TokenIssuer {
	t.Helper()
	issuer, err := security.NewTokenIssuer("test-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer
}

type stubUserRepo struct {
	createFn         func(ctx context.Context, user domain.User) error
	getByIDFn        func(ctx context.Context, id string) (*domain.User, error)
	getByEmailFn     func(ctx context.Context, email string) (*domain.User, error)
	emailExistsFn    func(ctx context.Context, email string) (bool, error)
	updatePasswordFn func(ctx context.Context, id, hash string, changedAt time.Time) (bool, error)
	verifyEmailFn    func(ctx context.Context, id string) (bool, error)
	updateProfileFn  func(ctx context.Context, id string, name, avatarURL *string) (*domain.User, error)
	softDeleteFn     func(ctx context.Context, id string) (bool, error)
}

func (r *stubUserRepo) Create(ctx context.Context, user domain.User) error {
	if r.createFn == nil {
		return errors.New("unexpected call: Create")
	}
	return r.createFn(ctx, user)
}

func (r *stubUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if r.getByIDFn == nil {
		return nil, errors.New("unexpected call: GetByID")
	}
	return r.getByIDFn(ctx, id)
}

func (r *stubUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if r.getByEmailFn == nil {
		return nil, errors.New("unexpected call: GetByEmail")
	}
	return r.getByEmailFn(ctx, email)
}

func (r *stubUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	if r.emailExistsFn == nil {
		return false, errors.New("unexpected call: EmailExists")
	}
	return r.emailExistsFn(ctx, email)
}

func (r *stubUserRepo) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) (bool, error) {
	if r.updatePasswordFn == nil {
		return false, errors.New("unexpected call: UpdatePassword")
	}
	return r.updatePasswordFn(ctx, id, hash, changedAt)
}

func (r *stubUserRepo) VerifyEmail(ctx context.Context, id string) (bool, error) {
	if r.verifyEmailFn == nil {
		return false, errors.New("unexpected call: VerifyEmail")
	}
	return r.verifyEmailFn(ctx, id)
}

func (r *stubUserRepo) UpdateProfile(ctx context.Context, id string, name, avatarURL *string) (*domain.User, error) {
	if r.updateProfileFn == nil {
		return nil, errors.New("unexpected call: UpdateProfile")
	}
	return r.updateProfileFn(ctx, id, name, avatarURL)
}

func (r *stubUserRepo) SoftDelete(ctx context.Context, id string) (bool, error) {
	if r.softDeleteFn == nil {
		return false, errors.New("unexpected call: SoftDelete")
	}
	return r.softDeleteFn(ctx, id)
}

type stubTokenRepo struct {
	createRefreshFn      func(ctx context.Context, token domain.RefreshToken) error
	getRefreshFn         func(ctx context.Context, id string) (*domain.RefreshToken, error)
	listActiveFn         func(ctx context.Context, userID string) ([]domain.RefreshToken, error)
	revokeRefreshFn      func(ctx context.Context, id string) error
	revokeForUserFn      func(ctx context.Context, userID string) (int, error)
	cleanupRefreshFn     func(ctx context.Context, expiredBefore time.Time) (int, error)
	replaceResetFn       func(ctx context.Context, token domain.PasswordResetToken) (int, error)
	getValidResetFn      func(ctx context.Context, userID string) (*domain.PasswordResetToken, error)
	consumeResetFn       func(ctx context.Context, id string) error
	invalidateAllResetFn func(ctx context.Context, userID string) (int, error)
	cleanupResetFn       func(ctx context.Context, expiredBefore time.Time) (int, error)
}

func (r *stubTokenRepo) CreateRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	if r.createRefreshFn == nil {
		return errors.New("unexpected call: CreateRefreshToken")
	}
	return r.createRefreshFn(ctx, token)
}

func (r *stubTokenRepo) GetRefreshToken(ctx context.Context, id string) (*domain.RefreshToken, error) {
	if r.getRefreshFn == nil {
		return nil, errors.New("unexpected call: GetRefreshToken")
	}
	return r.getRefreshFn(ctx, id)
}

func (r *stubTokenRepo) ListActiveRefreshTokens(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	if r.listActiveFn == nil {
		return nil, errors.New("unexpected call: ListActiveRefreshTokens")
	}
	return r.listActiveFn(ctx, userID)
}

func (r *stubTokenRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	if r.revokeRefreshFn == nil {
		return errors.New("unexpected call: RevokeRefreshToken")
	}
	return r.revokeRefreshFn(ctx, id)
}

func (r *stubTokenRepo) RevokeRefreshTokensForUser(ctx context.Context, userID string) (int, error) {
	if r.revokeForUserFn == nil {
		return 0, errors.New("unexpected call: RevokeRefreshTokensForUser")
	}
	return r.revokeForUserFn(ctx, userID)
}

func (r *stubTokenRepo) CleanupExpiredRefreshTokens(ctx context.Context, expiredBefore time.Time) (int, error) {
	if r.cleanupRefreshFn == nil {
		return 0, errors.New("unexpected call: CleanupExpiredRefreshTokens")
	}
	return r.cleanupRefreshFn(ctx, expiredBefore)
}

func (r *stubTokenRepo) ReplacePasswordReset(ctx context.Context, token domain.PasswordResetToken) (int, error) {
	if r.replaceResetFn == nil {
		return 0, errors.New("unexpected call: ReplacePasswordReset")
	}
	return r.replaceResetFn(ctx, token)
}

func (r *stubTokenRepo) GetValidPasswordReset(ctx context.Context, userID string) (*domain.PasswordResetToken, error) {
	if r.getValidResetFn == nil {
		return nil, errors.New("unexpected call: GetValidPasswordReset")
	}
	return r.getValidResetFn(ctx, userID)
}

func (r *stubTokenRepo) ConsumePasswordReset(ctx context.Context, id string) error {
	if r.consumeResetFn == nil {
		return errors.New("unexpected call: ConsumePasswordReset")
	}
	return r.consumeResetFn(ctx, id)
}

func (r *stubTokenRepo) InvalidateAllPasswordResets(ctx context.Context, userID string) (int, error) {
	if r.invalidateAllResetFn == nil {
		return 0, errors.New("unexpected call: InvalidateAllPasswordResets")
	}
	return r.invalidateAllResetFn(ctx, userID)
}

func (r *stubTokenRepo) CleanupExpiredPasswordResets(ctx context.Context, expiredBefore time.Time) (int, error) {
	if r.cleanupResetFn == nil {
		return 0, errors.New("unexpected call: CleanupExpiredPasswordResets")
	}
	return r.cleanupResetFn(ctx, expiredBefore)
}

type stubAttemptRepo struct {
	recordFn        func(ctx context.Context, attempt domain.LoginAttempt) error
	failureWindowFn func(ctx context.Context, email string, window time.Duration) (int, time.Time, error)
	cleanupFn       func(ctx context.Context, olderThan time.Time) (int, error)
}

func (r *stubAttemptRepo) RecordAttempt(ctx context.Context, attempt domain.LoginAttempt) error {
	if r.recordFn == nil {
		return errors.New("unexpected call: RecordAttempt")
	}
	return r.recordFn(ctx, attempt)
}

func (r *stubAttemptRepo) FailureWindow(ctx context.Context, email string, window time.Duration) (int, time.Time, error) {
	if r.failureWindowFn == nil {
		return 0, time.Time{}, errors.New("unexpected call: FailureWindow")
	}
	return r.failureWindowFn(ctx, email, window)
}

func (r *stubAttemptRepo) CleanupOldAttempts(ctx context.Context, olderThan time.Time) (int, error) {
	if r.cleanupFn == nil {
		return 0, errors.New("unexpected call: CleanupOldAttempts")
	}
	return r.cleanupFn(ctx, olderThan)
}

type stubOAuthRepo struct {
	createFn        func(ctx context.Context, account domain.OAuthAccount) error
	getByProviderFn func(ctx context.Context, provider domain.OAuthProvider, providerUserID string) (*domain.OAuthAccount, error)
	listForUserFn   func(ctx context.Context, userID string) ([]domain.OAuthAccount, error)
	hasProviderFn   func(ctx context.Context, userID string, provider domain.OAuthProvider) (bool, error)
	deleteFn        func(ctx context.Context, userID string, provider domain.OAuthProvider) error
	deleteForUserFn func(ctx context.Context, userID string) (int, error)
}

func (r *stubOAuthRepo) Create(ctx context.Context, account domain.OAuthAccount) error {
	if r.createFn == nil {
		return errors.New("unexpected call: Create")
	}
	return r.createFn(ctx, account)
}

func (r *stubOAuthRepo) GetByProvider(ctx context.Context, provider domain.OAuthProvider, providerUserID string) (*domain.OAuthAccount, error) {
	if r.getByProviderFn == nil {
		return nil, errors.New("unexpected call: GetByProvider")
	}
	return r.getByProviderFn(ctx, provider, providerUserID)
}

func (r *stubOAuthRepo) ListForUser(ctx context.Context, userID string) ([]domain.OAuthAccount, error) {
	if r.listForUserFn == nil {
		return nil, errors.New("unexpected call: ListForUser")
	}
	return r.listForUserFn(ctx, userID)
}

func (r *stubOAuthRepo) HasProvider(ctx context.Context, userID string, provider domain.OAuthProvider) (bool, error) {
	if r.hasProviderFn == nil {
		return false, errors.New("unexpected call: HasProvider")
	}
	return r.hasProviderFn(ctx, userID, provider)
}

func (r *stubOAuthRepo) Delete(ctx context.Context, userID string, provider domain.OAuthProvider) error {
	if r.deleteFn == nil {
		return errors.New("unexpected call: Delete")
	}
	return r.deleteFn(ctx, userID, provider)
}

func (r *stubOAuthRepo) DeleteForUser(ctx context.Context, userID string) (int, error) {
	if r.deleteForUserFn == nil {
		return 0, errors.New("unexpected call: DeleteForUser")
	}
	return r.deleteForUserFn(ctx, userID)
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu             sync.Mutex
	registered     []domain.UserRegisteredEvent
	loggedIn       []domain.UserLoggedInEvent
	resetRequested []domain.PasswordResetRequestedEvent
	changed        []domain.PasswordChangedEvent
	revoked        []domain.RefreshTokensRevokedEvent
	linked         []domain.OAuthLinkedEvent
}

func (p *recordingPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

func (p *recordingPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loggedIn = append(p.loggedIn, event)
	return nil
}

func (p *recordingPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetRequested = append(p.resetRequested, event)
	return nil
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, event)
	return nil
}

func (p *recordingPublisher) PublishRefreshTokensRevoked(_ context.Context, event domain.RefreshTokensRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *recordingPublisher) PublishOAuthLinked(_ context.Context, event domain.OAuthLinkedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linked = append(p.linked, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type stubRateStore struct {
	trimFn   func(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	countFn  func(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	recordFn func(ctx context.Context, identifier string, at time.Time) error
	oldestFn func(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

func (s *stubRateStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if s.trimFn == nil {
		return nil
	}
	return s.trimFn(ctx, identifier, window, reference)
}

func (s *stubRateStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx, identifier, window, reference)
}

func (s *stubRateStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	if s.recordFn == nil {
		return nil
	}
	return s.recordFn(ctx, identifier, at)
}

func (s *stubRateStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if s.oldestFn == nil {
		return time.Time{}, false, nil
	}
	return s.oldestFn(ctx, identifier, window, reference)
}

type authFixture struct {
	users    *stubUserRepo
	tokens   *stubTokenRepo
	attempts *stubAttemptRepo
	oauth    *stubOAuthRepo
	events   *recordingPublisher
	service  *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		users:    &stubUserRepo{},
		tokens:   &stubTokenRepo{},
		attempts: &stubAttemptRepo{},
		oauth:    &stubOAuthRepo{},
		events:   &recordingPublisher{},
	}
	f.service = NewAuthService(
		testAuthSettings(),
		f.users,
		f.tokens,
		f.attempts,
		f.oauth,
		testHasher(t),
		testIssuer(t),
		security.DefaultPasswordValidator(8),
		f.events,
		metrics.NewAuthMetrics(nil),
		zaptest.NewLogger(t),
	)
	return f
}
