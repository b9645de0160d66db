package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for every failed password login,
	// whether the account is missing, passwordless, or the password is
	// wrong. Callers must not be able to distinguish the cases.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken indicates a registration against an existing email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidRefreshToken covers malformed, unknown, mismatched and
	// revoked refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrExpiredRefreshToken indicates a well-formed token past its
	// expiry.
	ErrExpiredRefreshToken = errors.New("refresh token expired")

	// ErrInvalidResetToken covers unknown, expired, mismatched and
	// already-used password reset tokens.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// ErrOAuthAccountLinked indicates the user already has a link for the
	// provider under a different external identity.
	ErrOAuthAccountLinked = errors.New("provider already linked to this account")

	// ErrUserNotFound indicates a lookup for a missing or deleted account.
	ErrUserNotFound = errors.New("user not found")
)

// LockoutError is returned when the sliding-window failure threshold has
// been reached. RetryAfter is how long until the oldest counted failure
// leaves the window.
type LockoutError struct {
	RetryAfter time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry after %s", e.RetryAfter.Round(time.Second))
}
