package usecase

import (
	"context"
	"time"
)

// withStorageTimeout bounds an operation's storage work so a stalled store
// surfaces as repository.ErrUnavailable instead of hanging the caller. A
// nonpositive timeout leaves the caller's context untouched.
func withStorageTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
