package session

import "github.com/pscheid92/aurahealth/internal/domain"

// Decision is what the client may render for a given SessionState.
type Decision string

const (
	DecisionLoading           Decision = "loading"
	DecisionRedirectSignIn    Decision = "redirect_sign_in"
	DecisionUserNotRegistered Decision = "user_not_registered"
	DecisionRetry             Decision = "retry"
	DecisionSignedOut         Decision = "signed_out"
	DecisionNeedsRole         Decision = "needs_role"
	DecisionNeedsOnboarding   Decision = "needs_onboarding"
	DecisionRender            Decision = "render"
)

// Gate never lets protected content through while a loading flag is set.
func Gate(s domain.SessionState) Decision {
	if s.Loading() {
		return DecisionLoading
	}

	if s.AuthError != nil {
		switch s.AuthError.Kind {
		case domain.AuthErrorAuthRequired:
			return DecisionRedirectSignIn
		case domain.AuthErrorUserNotRegistered:
			return DecisionUserNotRegistered
		default:
			return DecisionRetry
		}
	}

	if !s.IsAuthenticated || s.CurrentUser == nil {
		return DecisionSignedOut
	}
	if s.CurrentUser.UserType == domain.RoleUnset {
		return DecisionNeedsRole
	}
	if !s.CurrentUser.OnboardingCompleted {
		return DecisionNeedsOnboarding
	}
	return DecisionRender
}
