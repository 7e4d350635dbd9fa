package httpserver

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

const oauthTimeout = 10 * time.Second

func (s *Server) registerAuthRoutes(csrfMiddleware echo.MiddlewareFunc) {
	s.echo.GET("/login", s.handleLogin)
	s.echo.GET("/auth/callback", s.handleOAuthCallback)
	s.echo.POST("/auth/logout", s.handleLogout, csrfMiddleware)
}

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// handleLogin starts an authorization code flow with PKCE. The state and
// the code verifier live in the cookie session until the callback.
func (s *Server) handleLogin(c echo.Context) error {
	if s.session.State().IsAuthenticated {
		return redirect(c, "/")
	}

	state, err := generateOAuthState()
	if err != nil {
		return apperrors.InternalError("failed to generate OAuth state", err)
	}
	verifier := oauth2.GenerateVerifier()

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.WarnContext(c.Request().Context(), "Discarding unreadable session cookie", "error", err)
	}
	session.Values[sessionKeyOAuthState] = state
	session.Values[sessionKeyOAuthVerifier] = verifier
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save OAuth state session", err)
	}

	return redirect(c, s.auth.AuthCodeURL(state, verifier))
}

func (s *Server) handleOAuthCallback(c echo.Context) error {
	if reason := c.QueryParam("error"); reason != "" {
		return apperrors.UnauthorizedError("sign-in was not completed").
			WithContext("reason", reason).
			WithContext("description", c.QueryParam("error_description"))
	}

	code := c.QueryParam("code")
	if code == "" {
		return apperrors.ValidationError("missing code parameter")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return apperrors.ValidationError("invalid session")
	}

	expectedState, ok := session.Values[sessionKeyOAuthState].(string)
	if !ok || expectedState == "" {
		return apperrors.ValidationError("missing OAuth state")
	}
	if subtle.ConstantTimeCompare([]byte(c.QueryParam("state")), []byte(expectedState)) != 1 {
		return apperrors.ValidationError("invalid OAuth state")
	}
	verifier, _ := session.Values[sessionKeyOAuthVerifier].(string)
	if verifier == "" {
		return apperrors.ValidationError("missing PKCE verifier")
	}

	delete(session.Values, sessionKeyOAuthState)
	delete(session.Values, sessionKeyOAuthVerifier)
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to clear OAuth state session", err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	token, err := s.auth.Exchange(ctx, code, verifier)
	if err != nil {
		return apperrors.ExternalError("failed to exchange authorization code", err)
	}

	// Sign-in listeners run synchronously, so the session sync has started
	// by the time this returns.
	if err := s.auth.SignIn(ctx, token); err != nil {
		return apperrors.UnauthorizedError("identity token rejected").WithCause(err)
	}

	slog.InfoContext(ctx, "Signed in through authorization code flow")
	return redirect(c, "/")
}

// handleLogout ends the session. It redirects to /login unless the caller
// passes redirect=false, in which case it answers 204.
func (s *Server) handleLogout(c echo.Context) error {
	shouldRedirect := true
	if raw := c.QueryParam("redirect"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.ValidationError("redirect must be a boolean").WithContext("redirect", raw)
		}
		shouldRedirect = parsed
	}

	if s.session.Logout(c.Request().Context(), shouldRedirect) {
		return redirect(c, "/login")
	}
	if err := c.NoContent(http.StatusNoContent); err != nil {
		return fmt.Errorf("failed to write logout response: %w", err)
	}
	return nil
}

func redirect(c echo.Context, to string) error {
	if err := c.Redirect(http.StatusFound, to); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}
