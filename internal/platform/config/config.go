package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	AppID            string        `env:"APP_ID"`
	FunctionsVersion string        `env:"FUNCTIONS_VERSION"`
	BackendBaseURL   string        `env:"BACKEND_BASE_URL"`
	SettingsRoot     string        `env:"SETTINGS_ROOT" default:"prod"`
	BackendTimeout   time.Duration `env:"BACKEND_TIMEOUT" default:"10s"`

	OIDCIssuerURL    string `env:"OIDC_ISSUER_URL"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURI  string `env:"OIDC_REDIRECT_URI"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" default:"168h"` // 7 days

	// Empty selects the in-memory token store.
	RedisURL string `env:"REDIS_URL"`
	// Hex-encoded AES-256 key sealing the persisted token set. Empty stores it in plaintext.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	CheckRatePerSecond float64 `env:"CHECK_RATE_PER_SEC" default:"1"`

	// PublicURL is the companion's own origin for WebSocket origin checks.
	// Empty falls back to the origin of OIDC_REDIRECT_URI.
	PublicURL        string        `env:"PUBLIC_URL"`
	MaxStreamClients int           `env:"MAX_STREAM_CLIENTS" default:"64"`
	SyncTimeout      time.Duration `env:"SYNC_TIMEOUT" default:"30s"`
}

func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// StreamOrigin returns the URL whose origin may open the session stream.
func (c *Config) StreamOrigin() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return c.OIDCRedirectURI
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"APP_ID", cfg.AppID},
		{"BACKEND_BASE_URL", cfg.BackendBaseURL},
		{"OIDC_ISSUER_URL", cfg.OIDCIssuerURL},
		{"OIDC_CLIENT_ID", cfg.OIDCClientID},
		{"OIDC_REDIRECT_URI", cfg.OIDCRedirectURI},
		{"SESSION_SECRET", cfg.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	for _, u := range []struct{ name, value string }{
		{"BACKEND_BASE_URL", cfg.BackendBaseURL},
		{"OIDC_ISSUER_URL", cfg.OIDCIssuerURL},
		{"OIDC_REDIRECT_URI", cfg.OIDCRedirectURI},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", u.name)
		}
	}

	if len(cfg.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET must be at least 32 characters")
	}
	if cfg.TokenEncryptionKey != "" && len(cfg.TokenEncryptionKey) != 64 {
		return errors.New("TOKEN_ENCRYPTION_KEY must be 64 hex characters")
	}
	if cfg.BackendTimeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be positive")
	}
	if cfg.CheckRatePerSecond <= 0 {
		return errors.New("CHECK_RATE_PER_SEC must be positive")
	}
	if cfg.MaxStreamClients <= 0 {
		return errors.New("MAX_STREAM_CLIENTS must be positive")
	}
	if cfg.SyncTimeout < 0 {
		return errors.New("SYNC_TIMEOUT must not be negative")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return nil
}
