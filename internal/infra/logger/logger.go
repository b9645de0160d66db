// Package logger builds the service-wide zap logger and provides the
// masking helpers for personally identifiable fields. Raw passwords,
// tokens, and secrets must never reach a log line, masked or not.
package logger

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	lg   *zap.Logger
	once sync.Once
)

// New returns a singleton zap.Logger configured for structured logging.
func New(env string) (*zap.Logger, error) {
	var err error
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		if env != "production" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}

		lg, err = cfg.Build()
	})

	return lg, err
}

// redactedKeys are fields whose values are replaced wholesale. Matching is
// case-insensitive on the exact key name.
var redactedKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"access_token":  {},
	"refresh_token": {},
	"api_key":       {},
	"secret":        {},
	"jwt_secret":    {},
}

// SanitizeValue returns the loggable form of a key/value pair: secrets are
// fully redacted, emails and phones partially masked, everything else
// passes through.
func SanitizeValue(key, value string) string {
	lower := strings.ToLower(key)
	if _, ok := redactedKeys[lower]; ok {
		return "[REDACTED]"
	}
	switch lower {
	case "email":
		return MaskEmail(value)
	case "phone":
		return MaskPhone(value)
	case "ip", "ip_address":
		return MaskIP(value)
	case "token_hash":
		return MaskString(value)
	}
	return value
}

// SanitizeFields applies SanitizeValue to each pair and returns zap fields.
func SanitizeFields(pairs map[string]string) []zap.Field {
	fields := make([]zap.Field, 0, len(pairs))
	for key, value := range pairs {
		fields = append(fields, zap.String(key, SanitizeValue(key, value)))
	}
	return fields
}

var (
	emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)
	phoneRegex = regexp.MustCompile(`^(\+?\d{1,3})(\d{4,})(\d{4})$`)
)

// MaskEmail masks email addresses, showing up to 3 leading characters and
// the domain: john.doe@example.com -> joh***@example.com
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	matches := emailRegex.FindStringSubmatch(email)
	if len(matches) == 3 {
		return matches[1] + "***" + matches[2]
	}

	parts := strings.SplitN(email, "@", 2)
	if len(parts) == 2 {
		return "***@" + parts[1]
	}

	return "***"
}

// MaskPhone masks phone numbers, showing the country code and last 4
// digits: +1234567890 -> +123***7890
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}

	matches := phoneRegex.FindStringSubmatch(phone)
	if len(matches) == 4 {
		return matches[1] + "***" + matches[3]
	}

	if len(phone) > 4 {
		return "***" + phone[len(phone)-4:]
	}

	return "***"
}

// MaskIP shows the first 2 octets for IPv4 and the first 4 groups for IPv6.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) == 4 {
			return parts[0] + "." + parts[1] + ".*.*"
		}
	}

	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) >= 4 {
			return strings.Join(parts[:4], ":") + ":*:*:*:*"
		}
	}

	return "***"
}

// MaskString shows the first and last 2 characters with *** in between.
func MaskString(s string) string {
	if s == "" {
		return ""
	}

	if len(s) <= 4 {
		return "***"
	}

	return s[:2] + "***" + s[len(s)-2:]
}
