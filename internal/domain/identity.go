package domain

import (
	"context"
	"time"
)

// Principal is the identity provider's handle on a signed-in person.
type Principal interface {
	Subject() string
	Email() string
	DisplayName() string
	// FreshToken returns a bearer token valid for the next backend call.
	FreshToken(ctx context.Context) (string, error)
}

// SignInListener receives the new principal, or nil after sign-out.
type SignInListener func(ctx context.Context, p Principal)

type IdentityProvider interface {
	OnSignInStateChanged(fn SignInListener) (unsubscribe func())
	CurrentPrincipal() Principal
	SignOut(ctx context.Context) error
}

// TokenSource yields the bearer token for protected requests, or "" when nobody is signed in.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// StoredToken is the persisted identity-provider token set.
type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token"`
	Expiry       time.Time `json:"expiry"`
	Subject      string    `json:"subject"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
}

type TokenStore interface {
	// Load returns ErrTokenNotFound when nothing is stored.
	Load(ctx context.Context) (*StoredToken, error)
	Save(ctx context.Context, token StoredToken) error
	Clear(ctx context.Context) error
}

// Navigator performs the redirect to the sign-in page.
type Navigator interface {
	NavigateToLogin()
}
