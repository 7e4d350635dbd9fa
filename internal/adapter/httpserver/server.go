package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/onboarding"
	"github.com/pscheid92/aurahealth/internal/platform/config"
)

// sessionService is the part of the bootstrapper the HTTP surface drives.
type sessionService interface {
	State() domain.SessionState
	CheckAppState(ctx context.Context)
	Logout(ctx context.Context, shouldRedirect bool) bool
}

// authFlow runs the authorization code flow against the identity provider.
type authFlow interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	SignIn(ctx context.Context, token *oauth2.Token) error
}

type onboardingService interface {
	Wizard(role domain.Role) (*onboarding.Wizard, error)
	Submit(ctx context.Context, role domain.Role) (*domain.User, error)
	SelectRole(ctx context.Context, role domain.Role) (*domain.User, error)
}

type sessionStream interface {
	Register(conn *websocket.Conn) error
	Unregister(conn *websocket.Conn)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	session    sessionService
	auth       authFlow
	onboarding onboardingService
	stream     sessionStream

	upgrader       websocket.Upgrader
	sessionStore   *sessions.CookieStore
	healthChecks   []HealthCheck
	metricsHandler http.Handler
	httpMetrics    echo.MiddlewareFunc
	startTime      time.Time
}

type Option func(*Server)

// WithMetrics serves handler on /metrics and records requests with mw.
func WithMetrics(handler http.Handler, mw echo.MiddlewareFunc) Option {
	return func(s *Server) {
		s.metricsHandler = handler
		s.httpMetrics = mw
	}
}

func WithHealthChecks(checks ...HealthCheck) Option {
	return func(s *Server) { s.healthChecks = append(s.healthChecks, checks...) }
}

func NewServer(cfg *config.Config, sess sessionService, auth authFlow, wizards onboardingService, stream sessionStream, checkOrigin func(*http.Request) bool, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		session:      sess,
		auth:         auth,
		onboarding:   wizards,
		stream:       stream,
		upgrader:     websocket.Upgrader{CheckOrigin: checkOrigin},
		sessionStore: setupSessionStore(cfg),
		startTime:    time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName             = "aura-session"
	sessionKeyOAuthState    = "oauth_state"
	sessionKeyOAuthVerifier = "oauth_verifier"

	contextKeyUserID = "userID"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Production(),
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}
