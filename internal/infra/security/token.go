package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateSecureToken returns a base64 URL-safe random string using the
// specified number of random bytes. 32 bytes yields a 43-character token.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates the SHA-256 hex digest of an opaque token.
// Bearer secrets are already high-entropy, so a single unsalted hash is
// enough to keep stored values useless to an attacker with table access.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// VerifyTokenHash compares a presented token against a stored digest in
// constant time.
func VerifyTokenHash(token, storedHash string) bool {
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// ComposeRefreshToken joins the ledger row id and the bearer secret into
// the wire form handed to clients.
func ComposeRefreshToken(id, secret string) string {
	return id + "." + secret
}

// SplitRefreshToken splits a presented refresh token on the first dot.
// The id part carries no secret material, so it is safe to use for lookup.
func SplitRefreshToken(token string) (id, secret string, ok bool) {
	id, secret, ok = strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return "", "", false
	}
	return id, secret, true
}
