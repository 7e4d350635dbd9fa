package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/aurahealth/internal/adapter/backend"
	"github.com/pscheid92/aurahealth/internal/adapter/httpserver"
	"github.com/pscheid92/aurahealth/internal/adapter/identity"
	"github.com/pscheid92/aurahealth/internal/adapter/memory"
	"github.com/pscheid92/aurahealth/internal/adapter/metrics"
	"github.com/pscheid92/aurahealth/internal/adapter/redis"
	"github.com/pscheid92/aurahealth/internal/adapter/websocket"
	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/onboarding"
	"github.com/pscheid92/aurahealth/internal/platform/config"
	"github.com/pscheid92/aurahealth/internal/platform/crypto"
	"github.com/pscheid92/aurahealth/internal/platform/logging"
	"github.com/pscheid92/aurahealth/internal/platform/version"
	"github.com/pscheid92/aurahealth/internal/session"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second

	redisBreakerDelay = 30 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupTokenStore picks Redis when REDIS_URL is set and the in-memory store otherwise.
func setupTokenStore(ctx context.Context, cfg *config.Config, m *metrics.TokenStoreMetrics, rm *metrics.RedisMetrics) (domain.TokenStore, *goredis.Client) {
	if cfg.RedisURL == "" {
		slog.Info("Using in-memory token store")
		return memory.NewTokenStore(), nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL,
		redis.NewMetricsHook(rm),
		redis.NewCircuitBreakerHook(redisBreakerDelay, rm),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	sealer, err := crypto.New(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Invalid token encryption key", "error", err)
		os.Exit(1)
	}
	slog.Info("Using Redis token store", "encrypted", cfg.TokenEncryptionKey != "")
	return redis.NewTokenStore(client, cfg.AppID, sealer, m), client
}

func setupIdentity(cfg *config.Config, tokens domain.TokenStore, clock clockwork.Clock) *identity.Provider {
	provider, err := identity.New(context.Background(), identity.Config{
		IssuerURL:    cfg.OIDCIssuerURL,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.OIDCRedirectURI,
	}, tokens, identity.WithClock(clock))
	if err != nil {
		slog.Error("Failed to set up identity provider", "issuer", cfg.OIDCIssuerURL, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	restored, err := provider.Restore(ctx)
	if err != nil {
		slog.Warn("Failed to restore previous sign-in", "error", err)
	}
	slog.Info("Identity provider ready", "issuer", cfg.OIDCIssuerURL, "restored_sign_in", restored)
	return provider
}

func healthChecks(boot *session.Bootstrapper, redisClient *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{{
		Name: "session",
		Check: func(context.Context) error {
			if boot.State().IsLoadingSettings {
				return errors.New("public settings not loaded yet")
			}
			return nil
		},
	}}
	if redisClient != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis ping failed: %w", err)
				}
				return nil
			},
		})
	}
	return checks
}

func runGracefulShutdown(srv *httpserver.Server, boot *session.Bootstrapper, hub *websocket.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		boot.Close()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Version)

	reg := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(reg)
	backendMetrics := metrics.NewBackendMetrics(reg)
	sessionMetrics := metrics.NewSessionMetrics(reg)
	streamMetrics := metrics.NewStreamMetrics(reg)
	tokenMetrics := metrics.NewTokenStoreMetrics(reg)
	redisMetrics := metrics.NewRedisMetrics(reg)

	startupCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	tokens, redisClient := setupTokenStore(startupCtx, cfg, tokenMetrics, redisMetrics)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	provider := setupIdentity(cfg, tokens, clock)

	client, err := backend.NewClient(backend.Config{
		BaseURL:          cfg.BackendBaseURL,
		SettingsRoot:     cfg.SettingsRoot,
		AppID:            cfg.AppID,
		FunctionsVersion: cfg.FunctionsVersion,
		Timeout:          cfg.BackendTimeout,
	}, provider, backend.WithMetrics(backendMetrics), backend.WithClock(clock))
	if err != nil {
		slog.Error("Failed to create backend client", "error", err)
		os.Exit(1)
	}

	hub := websocket.NewHub(cfg.MaxStreamClients, websocket.WithClock(clock), websocket.WithRecorder(streamMetrics))

	boot := session.New(session.Config{AppID: cfg.AppID, SyncTimeout: cfg.SyncTimeout}, client, provider, tokens,
		session.WithClock(clock),
		session.WithRecorder(sessionMetrics),
		session.WithNavigator(hub),
	)
	boot.Subscribe(hub.Publish)
	hub.Publish(boot.State())

	wizards := onboarding.NewService(client, client, boot, onboarding.WithClock(clock))
	boot.Subscribe(wizards.SessionChanged)

	srv := httpserver.NewServer(cfg, boot, provider, wizards, hub,
		websocket.NewCheckOrigin(cfg.StreamOrigin(), cfg.Development()),
		httpserver.WithMetrics(metrics.Handler(reg), httpMetrics.Middleware()),
		httpserver.WithHealthChecks(healthChecks(boot, redisClient)...),
	)

	done := runGracefulShutdown(srv, boot, hub)

	// The first check talks to the backend; serve probes meanwhile.
	go boot.Start(context.Background())

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
