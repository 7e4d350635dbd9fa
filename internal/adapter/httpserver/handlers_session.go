package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/aurahealth/internal/domain"
	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
	"github.com/pscheid92/aurahealth/internal/session"
)

type gatedResponse struct {
	Decision session.Decision    `json:"decision"`
	State    domain.SessionState `json:"state"`
}

func (s *Server) registerSessionRoutes(checkLimiter, csrfMiddleware echo.MiddlewareFunc) {
	s.echo.GET("/api/session", s.handleGetSession, csrfMiddleware)
	s.echo.POST("/api/session/check", s.handleCheckSession, checkLimiter)
	s.echo.GET("/ws/session", s.handleSessionStream)

	s.echo.GET("/not-registered", s.handleNotRegistered)
	s.echo.GET("/role-selection", s.handleRoleSelection)
}

// handleRoot renders the gate: blocked and incomplete sessions are sent
// to the page that resolves them, everything else gets the session as JSON.
func (s *Server) handleRoot(c echo.Context) error {
	state := s.session.State()
	decision := session.Gate(state)

	switch decision {
	case session.DecisionRedirectSignIn, session.DecisionSignedOut:
		return redirect(c, "/login")
	case session.DecisionUserNotRegistered:
		return redirect(c, "/not-registered")
	case session.DecisionNeedsRole:
		return redirect(c, "/role-selection")
	case session.DecisionNeedsOnboarding:
		return redirect(c, "/onboarding/"+string(state.CurrentUser.UserType))
	}

	return writeJSON(c, http.StatusOK, gatedResponse{Decision: decision, State: state})
}

func (s *Server) handleGetSession(c echo.Context) error {
	return writeJSON(c, http.StatusOK, s.session.State())
}

// handleCheckSession is the manual retry. It blocks until the check
// settles and answers with the resulting state.
func (s *Server) handleCheckSession(c echo.Context) error {
	s.session.CheckAppState(c.Request().Context())
	state := s.session.State()
	return writeJSON(c, http.StatusOK, gatedResponse{Decision: session.Gate(state), State: state})
}

func (s *Server) handleSessionStream(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	if err := s.stream.Register(conn); err != nil {
		slog.WarnContext(c.Request().Context(), "Failed to register session stream client", "error", err)
		return nil
	}

	// Read pump; blocks until the connection closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.stream.Unregister(conn)
	return nil
}

func (s *Server) handleNotRegistered(c echo.Context) error {
	state := s.session.State()
	if state.AuthError == nil || state.AuthError.Kind != domain.AuthErrorUserNotRegistered {
		return redirect(c, "/")
	}
	return writeJSON(c, http.StatusForbidden, map[string]string{
		"error":   string(state.AuthError.Kind),
		"message": state.AuthError.Message,
	})
}

func (s *Server) handleRoleSelection(c echo.Context) error {
	user, err := s.currentUser()
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, map[string]any{
		"current": user.UserType,
		"roles":   []domain.Role{domain.RolePatient, domain.RoleDoctor},
	})
}

// requireUser rejects requests unless the session holds a backend user.
func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := s.currentUser()
		if err != nil {
			return err
		}
		c.Set(contextKeyUserID, user.ID)
		return next(c)
	}
}

func (s *Server) currentUser() (*domain.User, error) {
	state := s.session.State()
	if !state.IsAuthenticated || state.CurrentUser == nil {
		return nil, apperrors.UnauthorizedError("sign in required").WithCause(domain.ErrNoPrincipal)
	}
	return state.CurrentUser, nil
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to write JSON response: %w", err)
	}
	return nil
}

func parseRole(raw string) (domain.Role, error) {
	role, err := domain.ParseRole(raw)
	if errors.Is(err, domain.ErrUnknownRole) {
		return role, apperrors.NotFoundError("unknown role").WithContext("role", raw)
	}
	return role, err
}
