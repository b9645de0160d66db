package domain

import "time"

// OAuthProvider identifies an external identity provider.
type OAuthProvider string

const (
	OAuthProviderGoogle    OAuthProvider = "google"
	OAuthProviderMicrosoft OAuthProvider = "microsoft"
)

// User mirrors the persisted representation in the users table.
// PasswordHash is nil for accounts created through an OAuth provider.
type User struct {
	ID            string
	Email         string
	PasswordHash  *string
	Name          string
	AvatarURL     *string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

// HasPassword reports whether password login is possible for this account.
// OAuth-only accounts carry no hash and must never run a password comparison.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsDeleted reports whether the account has been soft-deleted.
func (u User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// LoginAttempt records one authentication attempt. Rows are append-only
// and drive the sliding-window lockout.
type LoginAttempt struct {
	ID        string
	Email     string
	Success   bool
	IP        *string
	UserAgent *string
	CreatedAt time.Time
}

// OAuthAccount links a local user to an external provider identity.
// (Provider, ProviderUserID) is globally unique.
type OAuthAccount struct {
	ID             string
	UserID         string
	Provider       OAuthProvider
	ProviderUserID string
	Email          *string
	CreatedAt      time.Time
}
