package domain

import "time"

// UserRegisteredEvent represents the payload for auth.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	Name         string
	RegisteredAt time.Time
	Method       string
	Metadata     map[string]any
}

// UserLoggedInEvent represents the payload for auth.user.logged_in messages.
type UserLoggedInEvent struct {
	EventID    string
	UserID     string
	Email      string
	LoggedInAt time.Time
	IPAddress  *string
	Metadata   map[string]any
}

// PasswordResetRequestedEvent represents the payload for
// auth.user.password.reset_requested messages. The raw token rides in the
// payload for the downstream mailer; the masked destination is what may be
// logged.
type PasswordResetRequestedEvent struct {
	EventID           string
	UserID            string
	RequestID         string
	RequestedAt       time.Time
	Token             string
	MaskedDestination string
	ExpiresAt         time.Time
	IPAddress         *string
	Metadata          map[string]any
}

// PasswordChangedEvent represents the payload for auth.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID       string
	UserID        string
	ChangedAt     time.Time
	TokensRevoked int
	Metadata      map[string]any
}

// RefreshTokensRevokedEvent represents the payload for auth.tokens.revoked messages.
type RefreshTokensRevokedEvent struct {
	EventID   string
	UserID    string
	RevokedAt time.Time
	Count     int
	Reason    string
	Metadata  map[string]any
}

// OAuthLinkedEvent represents the payload for auth.oauth.linked messages.
type OAuthLinkedEvent struct {
	EventID  string
	UserID   string
	Provider string
	LinkedAt time.Time
	NewUser  bool
	Metadata map[string]any
}
