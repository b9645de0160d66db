package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/donmccarty/braidmgr-auth/internal/core/port"
	"github.com/donmccarty/braidmgr-auth/internal/infra/config"
	"github.com/donmccarty/braidmgr-auth/internal/infra/metrics"
)

// CleanupService deletes rows past their retention: expired refresh
// tokens, expired reset tokens, and login attempts older than the
// retention horizon.
type CleanupService struct {
	cfg      config.CleanupSettings
	tokens   port.TokenRepository
	attempts port.LoginAttemptRepository
	metrics  *metrics.AuthMetrics
	logger   *zap.Logger

	now func() time.Time
}

// CleanupStats reports what one sweep removed.
type CleanupStats struct {
	RefreshTokens int
	ResetTokens   int
	LoginAttempts int
}

// NewCleanupService wires the retention sweeper.
func NewCleanupService(
	cfg config.CleanupSettings,
	tokens port.TokenRepository,
	attempts port.LoginAttemptRepository,
	m *metrics.AuthMetrics,
	log *zap.Logger,
) *CleanupService {
	return &CleanupService{
		cfg:      cfg,
		tokens:   tokens,
		attempts: attempts,
		metrics:  m,
		logger:   log,
		now:      time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Sweep errors are logged and the loop continues; a failed sweep retries
// on the next tick.
func (s *CleanupService) Run(ctx context.Context) {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("cleanup loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cleanup loop stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("cleanup sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep and returns the deletion counts.
func (s *CleanupService) RunOnce(ctx context.Context) (CleanupStats, error) {
	now := s.now().UTC()
	var stats CleanupStats

	// Expired tokens linger for the retention period; rows inside it are
	// dead for authentication but still useful for audit.
	tokenCutoff := now.Add(-s.cfg.TokenRetention)

	deleted, err := s.tokens.CleanupExpiredRefreshTokens(ctx, tokenCutoff)
	if err != nil {
		return stats, err
	}
	stats.RefreshTokens = deleted
	s.count("refresh_tokens", deleted)

	deleted, err = s.tokens.CleanupExpiredPasswordResets(ctx, tokenCutoff)
	if err != nil {
		return stats, err
	}
	stats.ResetTokens = deleted
	s.count("password_reset_tokens", deleted)

	retention := s.cfg.AttemptRetention
	if retention > 0 {
		deleted, err = s.attempts.CleanupOldAttempts(ctx, now.Add(-retention))
		if err != nil {
			return stats, err
		}
		stats.LoginAttempts = deleted
		s.count("login_attempts", deleted)
	}

	s.logger.Info("cleanup sweep finished",
		zap.Int("refresh_tokens", stats.RefreshTokens),
		zap.Int("reset_tokens", stats.ResetTokens),
		zap.Int("login_attempts", stats.LoginAttempts))
	return stats, nil
}

func (s *CleanupService) count(table string, n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.CleanupDeleted.WithLabelValues(table).Add(float64(n))
	}
}
