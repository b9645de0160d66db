package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

var (
	// ErrTokenExpired indicates the token's exp claim is in the past.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrTokenInvalidSignature indicates the signature does not match the key.
	ErrTokenInvalidSignature = errors.New("jwt: invalid signature")
	// ErrTokenMalformed indicates the value is not a parseable JWT.
	ErrTokenMalformed = errors.New("jwt: malformed token")
	// ErrTokenMissingClaim indicates a required claim is absent.
	ErrTokenMissingClaim = errors.New("jwt: missing required claim")
)

// AccessTokenClaims carries identity context alongside the registered set.
// OrgID and OrgRole are present only when the user acts within an
// organization.
type AccessTokenClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	OrgID   string `json:"org_id,omitempty"`
	OrgRole string `json:"org_role,omitempty"`
	jwt.RegisteredClaims
}

// AccessTokenOptions configures creation of an access token.
type AccessTokenOptions struct {
	UserID   string
	Email    string
	Name     string
	OrgID    string
	OrgRole  string
	IssuedAt time.Time
	TTL      time.Duration
	JTI      string
}

const defaultAccessTokenTTL = 15 * time.Minute

// TokenIssuer signs and decodes HS256 access tokens with a shared secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer constructs an issuer. The secret must be non-empty; an
// empty secret would make every signature trivially forgeable.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// IssueAccessToken signs a token for the supplied identity.
func (i *TokenIssuer) IssueAccessToken(opts AccessTokenOptions) (string, error) {
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		return "", fmt.Errorf("jwt: user id is required")
	}
	email := strings.TrimSpace(opts.Email)
	if email == "" {
		return "", fmt.Errorf("jwt: email is required")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = i.ttl
	}

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := &AccessTokenClaims{
		Email:   email,
		Name:    strings.TrimSpace(opts.Name),
		OrgID:   strings.TrimSpace(opts.OrgID),
		OrgRole: strings.TrimSpace(opts.OrgRole),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// DecodeAccessToken verifies the signature and expiry, then checks that
// the subject, email, and expiry claims are present.
func (i *TokenIssuer) DecodeAccessToken(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalidSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, fmt.Errorf("jwt: parse token: %w", err)
		}
	}

	if !token.Valid {
		return nil, ErrTokenInvalidSignature
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: sub", ErrTokenMissingClaim)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%w: email", ErrTokenMissingClaim)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: exp", ErrTokenMissingClaim)
	}

	return claims, nil
}

// IsTokenExpired reports whether the token's expiry falls inside the
// margin, without verifying the signature. Proactive-refresh callers use
// this to decide when to rotate; it must never gate access.
func (i *TokenIssuer) IsTokenExpired(tokenString string, margin time.Duration) bool {
	expiry, err := TokenExpiry(tokenString)
	if err != nil {
		return true
	}
	return time.Now().UTC().Add(margin).After(expiry)
}

// TokenUserID extracts the subject claim without signature verification.
// Best effort only, for logging and diagnostics.
func TokenUserID(tokenString string) (string, error) {
	claims, err := parseUnverified(tokenString)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: sub", ErrTokenMissingClaim)
	}
	return claims.Subject, nil
}

// TokenExpiry extracts the expiry claim without signature verification.
func TokenExpiry(tokenString string) (time.Time, error) {
	claims, err := parseUnverified(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: exp", ErrTokenMissingClaim)
	}
	return claims.ExpiresAt.Time, nil
}

func parseUnverified(tokenString string) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
