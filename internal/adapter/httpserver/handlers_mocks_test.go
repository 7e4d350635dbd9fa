package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/onboarding"
	"github.com/pscheid92/aurahealth/internal/platform/config"
)

// --- Mock implementations ---

type mockSession struct {
	mu         sync.Mutex
	state      domain.SessionState
	checkFn    func(ctx context.Context)
	checkCalls atomic.Int32
	logoutArgs []bool
}

func (m *mockSession) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockSession) set(state domain.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *mockSession) CheckAppState(ctx context.Context) {
	m.checkCalls.Add(1)
	if m.checkFn != nil {
		m.checkFn(ctx)
	}
}

func (m *mockSession) Logout(_ context.Context, shouldRedirect bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutArgs = append(m.logoutArgs, shouldRedirect)
	m.state = domain.SessionState{Phase: domain.PhaseNoSession}
	return shouldRedirect
}

type mockAuthFlow struct {
	exchangeFn func(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	signInFn   func(ctx context.Context, token *oauth2.Token) error

	lastState    string
	lastVerifier string
}

func (m *mockAuthFlow) AuthCodeURL(state, verifier string) string {
	m.lastState = state
	m.lastVerifier = verifier
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state) +
		"&code_challenge=" + url.QueryEscape(oauth2.S256ChallengeFromVerifier(verifier))
}

func (m *mockAuthFlow) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code, verifier)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthFlow) SignIn(ctx context.Context, token *oauth2.Token) error {
	if m.signInFn != nil {
		return m.signInFn(ctx, token)
	}
	return nil
}

type mockOnboarding struct {
	mu      sync.Mutex
	wizards map[domain.Role]*onboarding.Wizard

	submitFn     func(ctx context.Context, role domain.Role) (*domain.User, error)
	selectRoleFn func(ctx context.Context, role domain.Role) (*domain.User, error)
}

func newMockOnboarding() *mockOnboarding {
	return &mockOnboarding{wizards: make(map[domain.Role]*onboarding.Wizard)}
}

func (m *mockOnboarding) Wizard(role domain.Role) (*onboarding.Wizard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wizards[role]; ok {
		return w, nil
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var w *onboarding.Wizard
	switch role {
	case domain.RolePatient:
		w = onboarding.NewPatientWizard("UTC", clock)
	case domain.RoleDoctor:
		w = onboarding.NewDoctorWizard(clock)
	default:
		return nil, domain.ErrUnknownRole
	}
	m.wizards[role] = w
	return w, nil
}

func (m *mockOnboarding) Submit(ctx context.Context, role domain.Role) (*domain.User, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, role)
	}
	return nil, errors.New("not implemented")
}

func (m *mockOnboarding) SelectRole(ctx context.Context, role domain.Role) (*domain.User, error) {
	if m.selectRoleFn != nil {
		return m.selectRoleFn(ctx, role)
	}
	return nil, errors.New("not implemented")
}

type mockStream struct {
	registerErr  error
	registered   chan *websocket.Conn
	unregistered chan *websocket.Conn
}

func newMockStream() *mockStream {
	return &mockStream{
		registered:   make(chan *websocket.Conn, 1),
		unregistered: make(chan *websocket.Conn, 1),
	}
}

func (m *mockStream) Register(conn *websocket.Conn) error {
	if m.registerErr != nil {
		_ = conn.Close()
		return m.registerErr
	}
	m.registered <- conn
	return nil
}

func (m *mockStream) Unregister(conn *websocket.Conn) {
	m.unregistered <- conn
}

// --- Test helpers ---

type testDeps struct {
	session    *mockSession
	auth       *mockAuthFlow
	onboarding *mockOnboarding
	stream     *mockStream
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *testDeps) {
	t.Helper()
	return newTestServerWithConfig(t, nil, opts...)
}

func newTestServerWithConfig(t *testing.T, mutate func(cfg *config.Config), opts ...Option) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		session:    &mockSession{state: domain.SessionState{Phase: domain.PhaseNoSession}},
		auth:       &mockAuthFlow{},
		onboarding: newMockOnboarding(),
		stream:     newMockStream(),
	}
	cfg := &config.Config{
		AppEnv:             "test",
		SessionSecret:      "test-secret-key-32-bytes-long!!!",
		SessionMaxAge:      time.Hour,
		CheckRatePerSecond: 100,
	}
	if mutate != nil {
		mutate(cfg)
	}
	allowAll := func(*http.Request) bool { return true }

	srv := NewServer(cfg, deps.session, deps.auth, deps.onboarding, deps.stream, allowAll, opts...)
	return srv, deps
}

func authenticated(user domain.User) domain.SessionState {
	return domain.SessionState{
		Phase:           domain.PhaseAuthenticated,
		IsAuthenticated: true,
		CurrentUser:     &user,
		PublicSettings:  &domain.AppPublicSettings{ID: "app-1"},
	}
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

// withCookies copies the cookies set on rec onto req.
func withCookies(t *testing.T, req *http.Request, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	return req
}

// withCSRF fetches a token from /api/session, as the shell does, and
// attaches it to req.
func withCSRF(srv *Server, req *http.Request) *http.Request {
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == csrfCookieName {
			req.AddCookie(cookie)
		}
	}
	req.Header.Set(echo.HeaderXCSRFToken, rec.Header().Get(echo.HeaderXCSRFToken))
	return req
}
