package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/pscheid92/aurahealth/internal/domain"
)

type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type Option func(*Provider)

func WithClock(clock clockwork.Clock) Option {
	return func(p *Provider) { p.clock = clock }
}

// WithHTTPClient sets the client used for discovery, code exchange and refresh.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.httpClient = client }
}

// Provider is an OpenID Connect identity provider. It signs principals in
// through the authorization-code flow with PKCE and keeps the token set in a
// TokenStore so a restarted process can restore the principal.
type Provider struct {
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	store      domain.TokenStore
	clock      clockwork.Clock
	httpClient *http.Client

	// storeMu orders token writes against sign-in and sign-out.
	storeMu sync.Mutex

	mu        sync.Mutex
	current   *principal
	listeners map[uint64]domain.SignInListener
	nextID    uint64
}

var (
	_ domain.IdentityProvider = (*Provider)(nil)
	_ domain.TokenSource      = (*Provider)(nil)
)

// New discovers the issuer's endpoints and keys. The key set keeps using
// ctx for later key fetches, so ctx must outlive the provider.
func New(ctx context.Context, cfg Config, store domain.TokenStore, opts ...Option) (*Provider, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc config missing required fields")
	}

	p := newProvider(cfg, store, opts...)
	discovered, err := oidc.NewProvider(p.clientContext(ctx), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	p.oauth.Endpoint = discovered.Endpoint()
	p.verifier = discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID, Now: p.clock.Now})
	return p, nil
}

// NewWithVerifier builds a provider from a known endpoint and verifier
// without contacting the issuer.
func NewWithVerifier(cfg Config, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier, store domain.TokenStore, opts ...Option) *Provider {
	p := newProvider(cfg, store, opts...)
	p.oauth.Endpoint = endpoint
	p.verifier = verifier
	return p
}

func newProvider(cfg Config, store domain.TokenStore, opts ...Option) *Provider {
	p := &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, oidc.ScopeOfflineAccess, "email", "profile"},
		},
		store:     store,
		clock:     clockwork.NewRealClock(),
		listeners: make(map[uint64]domain.SignInListener),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthCodeURL builds the authorization URL with a S256 PKCE challenge for verifier.
func (p *Provider) AuthCodeURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
}

// Exchange trades an authorization code for a token set.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	token, err := p.oauth.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return token, nil
}

// SignIn verifies the token's ID token, persists the token set and notifies
// listeners of the new principal.
func (p *Provider) SignIn(ctx context.Context, token *oauth2.Token) error {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return errors.New("identity provider did not return id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("id_token verification failed: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return fmt.Errorf("id_token claims parse failed: %w", err)
	}

	stored := domain.StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		Expiry:       token.Expiry,
		Subject:      idToken.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
	}
	next := p.newPrincipal(stored, token)
	p.storeMu.Lock()
	err = p.store.Save(ctx, stored)
	if err == nil {
		p.mu.Lock()
		p.current = next
		p.mu.Unlock()
	}
	p.storeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}

	slog.InfoContext(ctx, "Principal signed in", "subject", idToken.Subject)
	p.setCurrent(ctx, next)
	return nil
}

// Restore loads a previously stored token set and makes it the current
// principal without notifying listeners. It reports whether a principal
// was restored.
func (p *Provider) Restore(ctx context.Context) (bool, error) {
	stored, err := p.store.Load(ctx)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load stored token: %w", err)
	}
	if stored.Subject == "" {
		return false, nil
	}

	token := (&oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiry:       stored.Expiry,
	}).WithExtra(map[string]any{"id_token": stored.IDToken})

	p.mu.Lock()
	p.current = p.newPrincipal(*stored, token)
	p.mu.Unlock()

	slog.InfoContext(ctx, "Restored stored principal", "subject", stored.Subject)
	return true, nil
}

func (p *Provider) OnSignInStateChanged(fn domain.SignInListener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return sync.OnceFunc(func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	})
}

func (p *Provider) CurrentPrincipal() domain.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

// SignOut forgets the principal and its stored token, then notifies listeners with nil.
func (p *Provider) SignOut(ctx context.Context) error {
	p.storeMu.Lock()
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	var clearErr error
	if err := p.store.Clear(ctx); err != nil && !errors.Is(err, domain.ErrTokenNotFound) {
		clearErr = fmt.Errorf("failed to clear stored token: %w", err)
	}
	p.storeMu.Unlock()

	p.setCurrent(ctx, nil)
	return clearErr
}

func (p *Provider) isCurrent(pr *principal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current == pr
}

// BearerToken returns a fresh token of the current principal, or "" when
// nobody is signed in.
func (p *Provider) BearerToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil {
		return "", nil
	}
	return current.FreshToken(ctx)
}

// setCurrent swaps the principal and notifies listeners synchronously, so a
// sign-in returns only after listeners have handled it.
func (p *Provider) setCurrent(ctx context.Context, next *principal) {
	p.mu.Lock()
	p.current = next
	listeners := make([]domain.SignInListener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	var notify domain.Principal
	if next != nil {
		notify = next
	}
	for _, fn := range listeners {
		fn(ctx, notify)
	}
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, p.httpClient)
}
