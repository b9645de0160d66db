package port

import (
	"context"
	"time"

	"github.com/donmccarty/braidmgr-auth/internal/core/domain"
)

// LoginAttemptRepository records authentication attempts and answers the
// sliding-window queries that drive lockout.
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt domain.LoginAttempt) error
	// FailureWindow returns the failed-attempt count inside the window and
	// the timestamp of the oldest qualifying failure in a single query.
	// When the count is zero the returned time is the zero value.
	FailureWindow(ctx context.Context, email string, window time.Duration) (int, time.Time, error)
	CleanupOldAttempts(ctx context.Context, olderThan time.Time) (int, error)
}
