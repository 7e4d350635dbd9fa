package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pscheid92/aurahealth/internal/domain"
)

// --- Mock implementations ---

type mockAuthAPI struct {
	loginFn    func(ctx context.Context, token string) (*domain.User, error)
	signupFn   func(ctx context.Context, token string, req domain.SignupRequest) (*domain.User, error)
	meFn       func(ctx context.Context) (*domain.User, error)
	updateMeFn func(ctx context.Context, patch domain.UserPatch) (*domain.User, error)
	settingsFn func(ctx context.Context, appID string) (*domain.AppPublicSettings, error)

	loginCalls    atomic.Int32
	signupCalls   atomic.Int32
	meCalls       atomic.Int32
	settingsCalls atomic.Int32
}

func (m *mockAuthAPI) Login(ctx context.Context, token string) (*domain.User, error) {
	m.loginCalls.Add(1)
	if m.loginFn != nil {
		return m.loginFn(ctx, token)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthAPI) Signup(ctx context.Context, token string, req domain.SignupRequest) (*domain.User, error) {
	m.signupCalls.Add(1)
	if m.signupFn != nil {
		return m.signupFn(ctx, token, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthAPI) Me(ctx context.Context) (*domain.User, error) {
	m.meCalls.Add(1)
	if m.meFn != nil {
		return m.meFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthAPI) UpdateMe(ctx context.Context, patch domain.UserPatch) (*domain.User, error) {
	if m.updateMeFn != nil {
		return m.updateMeFn(ctx, patch)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthAPI) PublicSettings(ctx context.Context, appID string) (*domain.AppPublicSettings, error) {
	m.settingsCalls.Add(1)
	if m.settingsFn != nil {
		return m.settingsFn(ctx, appID)
	}
	return &domain.AppPublicSettings{ID: appID}, nil
}

type mockPrincipal struct {
	subject string
	email   string
	token   string
	err     error
}

func (p *mockPrincipal) Subject() string     { return p.subject }
func (p *mockPrincipal) Email() string       { return p.email }
func (p *mockPrincipal) DisplayName() string { return "Test User" }

func (p *mockPrincipal) FreshToken(context.Context) (string, error) {
	return p.token, p.err
}

type mockIdentity struct {
	mu           sync.Mutex
	current      domain.Principal
	listeners    map[int]domain.SignInListener
	nextID       int
	signOutCalls atomic.Int32
	signOutErr   error
}

func newMockIdentity(current domain.Principal) *mockIdentity {
	return &mockIdentity{current: current, listeners: make(map[int]domain.SignInListener)}
}

func (m *mockIdentity) OnSignInStateChanged(fn domain.SignInListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *mockIdentity) CurrentPrincipal() domain.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *mockIdentity) SignOut(ctx context.Context) error {
	m.signOutCalls.Add(1)
	m.fire(ctx, nil)
	return m.signOutErr
}

// fire sets the current principal and notifies listeners synchronously.
func (m *mockIdentity) fire(ctx context.Context, p domain.Principal) {
	m.mu.Lock()
	m.current = p
	listeners := make([]domain.SignInListener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, p)
	}
}

func (m *mockIdentity) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

type mockTokenStore struct {
	clearCalls atomic.Int32
}

func (m *mockTokenStore) Load(context.Context) (*domain.StoredToken, error) {
	return nil, domain.ErrTokenNotFound
}

func (m *mockTokenStore) Save(context.Context, domain.StoredToken) error { return nil }

func (m *mockTokenStore) Clear(context.Context) error {
	m.clearCalls.Add(1)
	return nil
}

type mockNavigator struct {
	calls atomic.Int32
}

func (m *mockNavigator) NavigateToLogin() { m.calls.Add(1) }

type mockRecorder struct {
	mu        sync.Mutex
	outcomes  []string
	phases    []domain.Phase
	kinds     []domain.AuthErrorKind
	discarded int
}

func (m *mockRecorder) SyncCompleted(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockRecorder) PhaseChanged(phase domain.Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases = append(m.phases, phase)
}

func (m *mockRecorder) AuthErrorRaised(kind domain.AuthErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
}

func (m *mockRecorder) ResultDiscarded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded++
}
