package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/platform/correlation"
)

const (
	msgAuthRequired      = "Authentication required"
	msgUserNotRegistered = "User not registered for this app"
	msgAuthFailed        = "Authentication failed"
	msgLoadFailed        = "Failed to load app"
	msgUnknown           = "Unknown error"
)

// Recorder observes bootstrapper activity.
type Recorder interface {
	SyncCompleted(outcome string, d time.Duration)
	PhaseChanged(phase domain.Phase)
	AuthErrorRaised(kind domain.AuthErrorKind)
	ResultDiscarded()
}

type nopRecorder struct{}

func (nopRecorder) SyncCompleted(string, time.Duration)  {}
func (nopRecorder) PhaseChanged(domain.Phase)            {}
func (nopRecorder) AuthErrorRaised(domain.AuthErrorKind) {}
func (nopRecorder) ResultDiscarded()                     {}

type Config struct {
	AppID string
	// SyncTimeout bounds each backend exchange. Zero leaves it to the backend client.
	SyncTimeout time.Duration
}

type Option func(*Bootstrapper)

func WithClock(clock clockwork.Clock) Option {
	return func(b *Bootstrapper) { b.clock = clock }
}

func WithRecorder(r Recorder) Option {
	return func(b *Bootstrapper) { b.recorder = r }
}

// WithNavigator sets the collaborator told to redirect to sign-in
// whenever the session enters auth_required.
func WithNavigator(n domain.Navigator) Option {
	return func(b *Bootstrapper) { b.navigator = n }
}

// Bootstrapper is the single owner of SessionState.
//
// Every sign-in change or logout starts a new generation. Results of an
// exchange that finish after a newer generation began, or after Close, are
// discarded. Public settings are the exception: they are independent of the
// signed-in principal and always land.
type Bootstrapper struct {
	cfg       Config
	auth      domain.AuthAPI
	identity  domain.IdentityProvider
	tokens    domain.TokenStore
	navigator domain.Navigator
	clock     clockwork.Clock
	recorder  Recorder

	checks singleflight.Group

	mu           sync.Mutex
	state        domain.SessionState
	generation   uint64
	syncing      uint64 // generation of the in-flight sign-in sync, 0 if none
	closed       bool
	subscribers  map[uint64]func(domain.SessionState)
	nextSubID    uint64
	stopIdentity func()

	// notifyMu keeps subscriber deliveries in commit order.
	notifyMu sync.Mutex
}

func New(cfg Config, auth domain.AuthAPI, identity domain.IdentityProvider, tokens domain.TokenStore, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		cfg:         cfg,
		auth:        auth,
		identity:    identity,
		tokens:      tokens,
		clock:       clockwork.NewRealClock(),
		recorder:    nopRecorder{},
		subscribers: make(map[uint64]func(domain.SessionState)),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.state = domain.SessionState{
		Phase:             domain.PhaseInit,
		IsLoadingAuth:     true,
		IsLoadingSettings: true,
		UpdatedAt:         b.clock.Now(),
	}
	b.recorder.PhaseChanged(domain.PhaseInit)
	return b
}

// Start subscribes to the identity provider and runs the first app state check.
func (b *Bootstrapper) Start(ctx context.Context) {
	unsubscribe := b.identity.OnSignInStateChanged(b.HandleSignInStateChanged)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		unsubscribe()
		return
	}
	b.stopIdentity = unsubscribe
	b.mu.Unlock()

	b.CheckAppState(ctx)
}

// Close detaches from the identity provider and drops subscribers.
// Exchanges still in flight finish but their results are discarded.
func (b *Bootstrapper) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	stop := b.stopIdentity
	b.stopIdentity = nil
	clear(b.subscribers)
	b.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (b *Bootstrapper) State() domain.SessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshot(b.state)
}

func (b *Bootstrapper) Gate() Decision {
	return Gate(b.State())
}

// Subscribe registers fn for every published snapshot. fn runs synchronously
// on the publishing goroutine and must not call Subscribe.
func (b *Bootstrapper) Subscribe(fn func(domain.SessionState)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	if !b.closed {
		b.subscribers[id] = fn
	}
	b.mu.Unlock()

	return sync.OnceFunc(func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	})
}

// HandleSignInStateChanged is the identity provider callback. A nil principal
// ends the session; otherwise the principal is synced with the backend.
func (b *Bootstrapper) HandleSignInStateChanged(ctx context.Context, p domain.Principal) {
	gen, ok := b.begin()
	if !ok {
		return
	}
	ctx = correlation.WithSyncID(context.WithoutCancel(ctx), uuid.NewString())

	if p == nil {
		slog.InfoContext(ctx, "No signed-in principal, clearing session")
		b.apply(gen, resetSession)
		return
	}

	slog.InfoContext(ctx, "Principal signed in, syncing with backend", "subject", p.Subject())
	b.mu.Lock()
	b.syncing = gen
	b.mu.Unlock()
	b.apply(gen, func(s *domain.SessionState) {
		s.Phase = domain.PhaseSyncing
		s.CurrentUser = nil
		s.AuthError = nil
		s.IsLoadingAuth = true
	})

	var (
		user *domain.User
		err  error
	)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Sync panicked", "panic", r)
			user, err = nil, fmt.Errorf("sync panicked: %v", r)
		}
		b.settleSync(ctx, gen, user, err)
	}()
	user, err = b.loginOrSignup(ctx, p)
}

func (b *Bootstrapper) loginOrSignup(ctx context.Context, p domain.Principal) (*domain.User, error) {
	ctx, cancel := b.exchangeContext(ctx)
	defer cancel()
	start := b.clock.Now()

	token, err := p.FreshToken(ctx)
	if err != nil {
		b.recorder.SyncCompleted("failed", b.clock.Since(start))
		return nil, fmt.Errorf("fetch identity token: %w", err)
	}

	outcome := login(ctx, b.auth, token)
	switch outcome.Result {
	case LoginFound:
		b.recorder.SyncCompleted("login", b.clock.Since(start))
		return outcome.User, nil
	case LoginFailed:
		slog.WarnContext(ctx, "Backend login failed", "status", outcome.Status, "error", outcome.Err)
		b.recorder.SyncCompleted("failed", b.clock.Since(start))
		return nil, outcome.Err
	}

	slog.InfoContext(ctx, "User not found in backend, attempting signup")
	user, err := b.auth.Signup(ctx, token, domain.SignupRequest{
		Email:    p.Email(),
		UserName: p.DisplayName(),
	})
	if err != nil {
		slog.WarnContext(ctx, "Backend signup failed", "error", err)
		b.recorder.SyncCompleted("failed", b.clock.Since(start))
		return nil, err
	}
	b.recorder.SyncCompleted("signup", b.clock.Since(start))
	return user, nil
}

func (b *Bootstrapper) settleSync(ctx context.Context, gen uint64, user *domain.User, err error) {
	b.apply(gen, func(s *domain.SessionState) {
		s.IsLoadingAuth = false
		if err != nil || user == nil {
			s.Phase = domain.PhaseError
			s.CurrentUser = nil
			s.AuthError = &domain.AuthError{Kind: domain.AuthErrorUnknown, Message: syncFailureMessage(err)}
			return
		}
		s.Phase = domain.PhaseAuthenticated
		s.CurrentUser = user
		s.AuthError = nil
	})

	b.mu.Lock()
	if b.syncing == gen {
		b.syncing = 0
	}
	b.mu.Unlock()

	if err == nil {
		slog.InfoContext(ctx, "Session synced")
	}
}

// CheckAppState fetches public settings and, when a principal is already
// signed in, re-validates it with the backend. Failures land in AuthError.
// Concurrent calls share one check.
func (b *Bootstrapper) CheckAppState(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	_, _, _ = b.checks.Do("check", func() (any, error) {
		b.checkAppState(ctx)
		return nil, nil
	})
}

func (b *Bootstrapper) checkAppState(ctx context.Context) {
	ctx = correlation.WithSyncID(ctx, uuid.NewString())

	b.mu.Lock()
	gen := b.generation
	signingIn := b.syncing != 0 && b.syncing == gen
	closed := b.closed
	awaitingSignIn := b.state.AuthError != nil && b.state.AuthError.Kind == domain.AuthErrorAuthRequired
	b.mu.Unlock()

	if closed {
		return
	}
	if awaitingSignIn {
		slog.DebugContext(ctx, "Authentication required, waiting for a new sign-in before contacting the backend")
		return
	}

	b.apply(gen, func(s *domain.SessionState) {
		if s.Phase == domain.PhaseInit || s.Phase == domain.PhaseError {
			s.Phase = domain.PhaseSettlingSettings
		}
		s.IsLoadingSettings = true
		s.AuthError = nil
	})

	settings, err := b.fetchSettings(ctx)
	if err != nil {
		authErr := classifySettingsError(err)
		slog.WarnContext(ctx, "App state check failed", "kind", authErr.Kind, "error", err)
		b.commit(gen, func(s *domain.SessionState, current bool) bool {
			s.IsLoadingSettings = false
			if !current {
				return true
			}
			s.IsLoadingAuth = false
			s.Phase = domain.PhaseError
			s.CurrentUser = nil
			s.AuthError = authErr
			return true
		})
		return
	}

	principal := b.identity.CurrentPrincipal()
	b.commit(gen, func(s *domain.SessionState, current bool) bool {
		s.PublicSettings = settings
		s.IsLoadingSettings = false
		if current && principal == nil {
			s.Phase = domain.PhaseNoSession
			s.CurrentUser = nil
			s.IsLoadingAuth = false
		}
		return true
	})

	switch {
	case principal == nil:
	case signingIn:
		// The sync owns this generation and settles the user itself.
		slog.DebugContext(ctx, "Sign-in sync in progress, skipping user re-validation")
	default:
		b.checkUserAuth(ctx, gen)
	}
}

func (b *Bootstrapper) fetchSettings(ctx context.Context) (*domain.AppPublicSettings, error) {
	ctx, cancel := b.exchangeContext(ctx)
	defer cancel()
	return b.auth.PublicSettings(ctx, b.cfg.AppID)
}

// checkUserAuth re-validates a restored principal via GET /auth/me.
func (b *Bootstrapper) checkUserAuth(ctx context.Context, gen uint64) {
	b.apply(gen, func(s *domain.SessionState) {
		s.Phase = domain.PhaseSyncing
		s.CurrentUser = nil
		s.IsLoadingAuth = true
	})

	var (
		user *domain.User
		err  error
	)
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "User check panicked", "panic", r)
			user, err = nil, fmt.Errorf("user check panicked: %v", r)
		}
		b.settleUserAuth(ctx, gen, user, err)
	}()

	exCtx, cancel := b.exchangeContext(ctx)
	defer cancel()
	start := b.clock.Now()
	user, err = b.auth.Me(exCtx)
	if err != nil {
		b.recorder.SyncCompleted("failed", b.clock.Since(start))
		return
	}
	b.recorder.SyncCompleted("me", b.clock.Since(start))
}

func (b *Bootstrapper) settleUserAuth(ctx context.Context, gen uint64, user *domain.User, err error) {
	if err != nil {
		slog.WarnContext(ctx, "User auth check failed", "error", err)
	}
	b.apply(gen, func(s *domain.SessionState) {
		s.IsLoadingAuth = false
		switch {
		case err == nil && user != nil:
			s.Phase = domain.PhaseAuthenticated
			s.CurrentUser = user
			s.AuthError = nil
		case errors.Is(err, domain.ErrUnauthorized):
			s.Phase = domain.PhaseError
			s.CurrentUser = nil
			s.AuthError = &domain.AuthError{Kind: domain.AuthErrorAuthRequired, Message: msgAuthRequired}
		default:
			s.Phase = domain.PhaseError
			s.CurrentUser = nil
			s.AuthError = &domain.AuthError{Kind: domain.AuthErrorUnknown, Message: syncFailureMessage(err)}
		}
	})
}

// Logout ends the session regardless of its current phase. It returns
// shouldRedirect unchanged; navigating is the caller's job.
func (b *Bootstrapper) Logout(ctx context.Context, shouldRedirect bool) bool {
	gen, ok := b.begin()
	if !ok {
		return shouldRedirect
	}
	ctx = context.WithoutCancel(ctx)

	if err := b.identity.SignOut(ctx); err != nil {
		slog.WarnContext(ctx, "Identity provider sign-out failed", "error", err)
	}
	if err := b.tokens.Clear(ctx); err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
		slog.WarnContext(ctx, "Failed to clear stored token", "error", err)
	}

	b.commit(gen, func(s *domain.SessionState, _ bool) bool {
		resetSession(s)
		return true
	})
	slog.InfoContext(ctx, "Logged out")
	return shouldRedirect
}

// RefreshUser re-reads the backend user of an authenticated session.
func (b *Bootstrapper) RefreshUser(ctx context.Context) error {
	b.mu.Lock()
	gen := b.generation
	authenticated := b.state.IsAuthenticated
	b.mu.Unlock()

	if !authenticated {
		return domain.ErrNoPrincipal
	}

	user, err := b.auth.Me(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			b.apply(gen, func(s *domain.SessionState) {
				s.Phase = domain.PhaseError
				s.CurrentUser = nil
				s.AuthError = &domain.AuthError{Kind: domain.AuthErrorAuthRequired, Message: msgAuthRequired}
			})
		}
		return fmt.Errorf("refresh user: %w", err)
	}

	b.updateUser(gen, user)
	return nil
}

// UpdateUser replaces the cached user, e.g. with a PATCH /auth/me response.
// It is ignored unless the session is authenticated as the same user.
func (b *Bootstrapper) UpdateUser(user *domain.User) {
	b.mu.Lock()
	gen := b.generation
	b.mu.Unlock()

	b.updateUser(gen, user)
}

func (b *Bootstrapper) updateUser(gen uint64, user *domain.User) {
	if user == nil {
		return
	}
	b.commit(gen, func(s *domain.SessionState, current bool) bool {
		if !current || s.Phase != domain.PhaseAuthenticated || s.CurrentUser == nil || s.CurrentUser.ID != user.ID {
			slog.Debug("Discarding user update for another session", "user_id", user.ID)
			return false
		}
		s.CurrentUser = user.Clone()
		return true
	})
}

// begin starts a new generation, superseding anything in flight.
func (b *Bootstrapper) begin() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, false
	}
	b.generation++
	return b.generation, true
}

func (b *Bootstrapper) apply(gen uint64, mutate func(s *domain.SessionState)) {
	b.commit(gen, func(s *domain.SessionState, current bool) bool {
		if !current {
			return false
		}
		mutate(s)
		return true
	})
}

// commit mutates the state under the lock and publishes the result.
// current reports whether gen is still the newest generation; mutate
// returns false to publish nothing.
func (b *Bootstrapper) commit(gen uint64, mutate func(s *domain.SessionState, current bool) bool) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.recorder.ResultDiscarded()
		return
	}

	current := gen == b.generation
	prev := b.state
	if !mutate(&b.state, current) {
		b.mu.Unlock()
		b.recorder.ResultDiscarded()
		return
	}

	b.state.IsAuthenticated = b.state.CurrentUser != nil && !b.state.AuthError.Blocking()
	b.state.Revision++
	b.state.UpdatedAt = b.clock.Now()
	next := snapshot(b.state)

	subs := make([]func(domain.SessionState), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}

	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()

	if prev.Phase != next.Phase {
		b.recorder.PhaseChanged(next.Phase)
	}
	enteredAuthRequired := false
	if next.AuthError != nil && (prev.AuthError == nil || prev.AuthError.Kind != next.AuthError.Kind) {
		b.recorder.AuthErrorRaised(next.AuthError.Kind)
		enteredAuthRequired = next.AuthError.Kind == domain.AuthErrorAuthRequired
	}

	for _, fn := range subs {
		fn(next)
	}

	if enteredAuthRequired && b.navigator != nil {
		b.navigator.NavigateToLogin()
	}
}

func (b *Bootstrapper) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.SyncTimeout > 0 {
		return context.WithTimeout(ctx, b.cfg.SyncTimeout)
	}
	return context.WithCancel(ctx)
}

func resetSession(s *domain.SessionState) {
	s.Phase = domain.PhaseNoSession
	s.CurrentUser = nil
	s.AuthError = nil
	s.IsLoadingAuth = false
}

func snapshot(s domain.SessionState) domain.SessionState {
	s.CurrentUser = s.CurrentUser.Clone()
	if s.AuthError != nil {
		e := *s.AuthError
		s.AuthError = &e
	}
	return s
}

func classifySettingsError(err error) *domain.AuthError {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden && apiErr.Reason != "" {
		switch domain.AuthErrorKind(apiErr.Reason) {
		case domain.AuthErrorAuthRequired:
			return &domain.AuthError{Kind: domain.AuthErrorAuthRequired, Message: msgAuthRequired}
		case domain.AuthErrorUserNotRegistered:
			return &domain.AuthError{Kind: domain.AuthErrorUserNotRegistered, Message: msgUserNotRegistered}
		default:
			return &domain.AuthError{Kind: domain.AuthErrorUnknown, Message: detailOr(apiErr, msgUnknown)}
		}
	}
	if errors.As(err, &apiErr) {
		return &domain.AuthError{Kind: domain.AuthErrorUnknown, Message: detailOr(apiErr, msgLoadFailed)}
	}
	return &domain.AuthError{Kind: domain.AuthErrorUnknown, Message: msgLoadFailed}
}

func syncFailureMessage(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return detailOr(apiErr, msgAuthFailed)
	}
	return msgAuthFailed
}

func detailOr(apiErr *domain.APIError, fallback string) string {
	if apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}
