package session

import (
	"context"
	"errors"

	"github.com/pscheid92/aurahealth/internal/domain"
)

type LoginResult int

const (
	LoginFound LoginResult = iota
	LoginNotFound
	LoginFailed
)

func (r LoginResult) String() string {
	switch r {
	case LoginFound:
		return "found"
	case LoginNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// LoginOutcome is the result of the first step of login-or-signup.
// Status and Detail are set for LoginFailed when the backend answered.
type LoginOutcome struct {
	Result LoginResult
	User   *domain.User
	Status int
	Detail string
	Err    error
}

func login(ctx context.Context, api domain.AuthAPI, token string) LoginOutcome {
	user, err := api.Login(ctx, token)
	if err == nil {
		return LoginOutcome{Result: LoginFound, User: user}
	}
	if errors.Is(err, domain.ErrNotFound) {
		return LoginOutcome{Result: LoginNotFound}
	}

	outcome := LoginOutcome{Result: LoginFailed, Err: err}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		outcome.Status = apiErr.Status
		outcome.Detail = apiErr.Detail
	}
	return outcome
}
