// Package app is the composition root: it wires configuration, storage,
// messaging and the auth services, and runs the background loops.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/donmccarty/braidmgr-auth/internal/core/port"
	"github.com/donmccarty/braidmgr-auth/internal/infra/config"
	"github.com/donmccarty/braidmgr-auth/internal/infra/database"
	kafkainfra "github.com/donmccarty/braidmgr-auth/internal/infra/kafka"
	"github.com/donmccarty/braidmgr-auth/internal/infra/logger"
	"github.com/donmccarty/braidmgr-auth/internal/infra/metrics"
	redisinfra "github.com/donmccarty/braidmgr-auth/internal/infra/redis"
	"github.com/donmccarty/braidmgr-auth/internal/infra/security"
	postgresrepo "github.com/donmccarty/braidmgr-auth/internal/repository/postgres"
	redisrepo "github.com/donmccarty/braidmgr-auth/internal/repository/redis"
	"github.com/donmccarty/braidmgr-auth/internal/usecase"
)

// Application holds the wired services and their infrastructure handles.
type Application struct {
	cfg      *config.AppConfig
	logger   *zap.Logger
	store    *postgresrepo.Store
	redis    *redisinfra.Client
	events   port.EventPublisher
	registry *prometheus.Registry

	auth    *usecase.AuthService
	reset   *usecase.PasswordResetService
	users   *usecase.UserService
	cleanup *usecase.CleanupService
}

// New wires the full service graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	store := postgresrepo.NewStoreFromPool(pool)
	repos := postgresrepo.NewRepositories(store)

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.KeyPrefix,
		TTL:       cfg.Auth.ResetRequestWindow * 2,
	})

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("kafka producer unavailable, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	hasher, err := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		_ = redisClient.Close()
		store.Close()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	issuer, err := security.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	if err != nil {
		_ = redisClient.Close()
		store.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	validator := security.StrictPasswordValidator(cfg.Auth.MinPasswordLength, cfg.Auth.MinPasswordScore)

	registry := prometheus.NewRegistry()
	authMetrics := metrics.NewAuthMetrics(registry)

	authService := usecase.NewAuthService(
		cfg.Auth,
		repos.Users, repos.Tokens, repos.LoginAttempts, repos.OAuthAccounts,
		hasher, issuer, validator,
		eventPublisher, authMetrics, log,
	)
	resetService := usecase.NewPasswordResetService(
		cfg.Auth,
		repos.Users, repos.Tokens, rateLimitStore,
		hasher, validator,
		eventPublisher, authMetrics, log,
	)
	userService := usecase.NewUserService(
		repos.Users, repos.Tokens, repos.OAuthAccounts,
		issuer, eventPublisher, log,
		cfg.Auth.StorageTimeout,
	)
	cleanupService := usecase.NewCleanupService(
		cfg.Cleanup,
		repos.Tokens, repos.LoginAttempts,
		authMetrics, log,
	)

	return &Application{
		cfg:      cfg,
		logger:   log,
		store:    store,
		redis:    redisClient,
		events:   eventPublisher,
		registry: registry,
		auth:     authService,
		reset:    resetService,
		users:    userService,
		cleanup:  cleanupService,
	}, nil
}

// Auth exposes the authentication service.
func (a *Application) Auth() *usecase.AuthService { return a.auth }

// PasswordReset exposes the reset service.
func (a *Application) PasswordReset() *usecase.PasswordResetService { return a.reset }

// Users exposes the profile service.
func (a *Application) Users() *usecase.UserService { return a.users }

// Logger exposes the application logger.
func (a *Application) Logger() *zap.Logger { return a.logger }

// Run starts the cleanup loop and, when enabled, the metrics endpoint,
// then blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.store.Close()
	defer func() {
		_ = a.redis.Close()
	}()
	defer func() {
		if err := a.events.Close(); err != nil {
			a.logger.Error("close event publisher", zap.Error(err))
		}
	}()

	go a.cleanup.Run(ctx)

	var metricsSrv *http.Server
	metricsErrCh := make(chan error, 1)
	if a.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", a.handleHealth)

		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.logger.Info("starting metrics endpoint", zap.String("address", metricsSrv.Addr))
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				metricsErrCh <- fmt.Errorf("run metrics server: %w", err)
			}
		}()
	}

	a.logger.Info("auth service started",
		zap.String("name", a.cfg.App.Name),
		zap.String("env", a.cfg.App.Env))

	select {
	case <-ctx.Done():
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown metrics server: %w", err)
			}
		}
		return nil
	case err := <-metricsErrCh:
		return err
	}
}

func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	timeout := a.cfg.Auth.StorageTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	if err := a.store.Pool().Ping(ctx); err != nil {
		a.logger.Error("health check: postgres", zap.Error(err))
		http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := a.redis.HealthCheck(ctx); err != nil {
		a.logger.Error("health check: redis", zap.Error(err))
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
