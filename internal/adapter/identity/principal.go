package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/pscheid92/aurahealth/internal/domain"
)

// idTokenLeeway keeps a nearly expired ID token from reaching the backend.
const idTokenLeeway = 30 * time.Second

type principal struct {
	provider *Provider
	subject  string
	email    string
	name     string

	mu      sync.Mutex
	source  oauth2.TokenSource
	last    *oauth2.Token
	idToken string
}

var _ domain.Principal = (*principal)(nil)

func (p *Provider) newPrincipal(stored domain.StoredToken, token *oauth2.Token) *principal {
	base := p.oauth.TokenSource(p.clientContext(context.Background()), token)
	return &principal{
		provider: p,
		subject:  stored.Subject,
		email:    stored.Email,
		name:     stored.Name,
		source:   oauth2.ReuseTokenSource(token, base),
		last:     token,
		idToken:  stored.IDToken,
	}
}

func (pr *principal) Subject() string     { return pr.subject }
func (pr *principal) Email() string       { return pr.email }
func (pr *principal) DisplayName() string { return pr.name }

// FreshToken refreshes the token set if needed and returns the ID token,
// falling back to the access token once the ID token has expired and the
// refresh response did not carry a new one.
func (pr *principal) FreshToken(ctx context.Context) (string, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	token, err := pr.source.Token()
	if err != nil {
		return "", fmt.Errorf("refresh identity token: %w", err)
	}

	if raw, ok := token.Extra("id_token").(string); ok && raw != "" {
		pr.idToken = raw
	}
	if token.AccessToken != pr.last.AccessToken {
		pr.last = token
		pr.persist(ctx, token)
	}

	if pr.idToken != "" && !pr.idTokenExpired() {
		return pr.idToken, nil
	}
	return token.AccessToken, nil
}

func (pr *principal) idTokenExpired() bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(pr.idToken, claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !pr.provider.clock.Now().Add(idTokenLeeway).Before(claims.ExpiresAt.Time)
}

// persist saves a refreshed token set unless pr was signed out meanwhile.
func (pr *principal) persist(ctx context.Context, token *oauth2.Token) {
	pr.provider.storeMu.Lock()
	defer pr.provider.storeMu.Unlock()

	if !pr.provider.isCurrent(pr) {
		slog.DebugContext(ctx, "Principal no longer signed in, not persisting refreshed token", "subject", pr.subject)
		return
	}

	stored := domain.StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      pr.idToken,
		Expiry:       token.Expiry,
		Subject:      pr.subject,
		Email:        pr.email,
		Name:         pr.name,
	}
	if err := pr.provider.store.Save(ctx, stored); err != nil {
		slog.WarnContext(ctx, "Failed to persist refreshed token", "error", err)
	}
}
