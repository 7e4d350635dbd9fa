package domain

import "time"

type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseSettlingSettings Phase = "settling_settings"
	PhaseNoSession        Phase = "no_session"
	PhaseSyncing          Phase = "syncing"
	PhaseAuthenticated    Phase = "authenticated"
	PhaseError            Phase = "error"
)

type AuthErrorKind string

const (
	AuthErrorAuthRequired      AuthErrorKind = "auth_required"
	AuthErrorUserNotRegistered AuthErrorKind = "user_not_registered"
	AuthErrorUnknown           AuthErrorKind = "unknown"
)

type AuthError struct {
	Kind    AuthErrorKind `json:"kind"`
	Message string        `json:"message"`
}

// Blocking reports whether the error revokes authentication.
func (e *AuthError) Blocking() bool {
	if e == nil {
		return false
	}
	return e.Kind == AuthErrorAuthRequired || e.Kind == AuthErrorUserNotRegistered
}

// SessionState is a snapshot of the process-wide session.
// Revision increases with every published change.
type SessionState struct {
	Phase             Phase              `json:"phase"`
	CurrentUser       *User              `json:"current_user,omitempty"`
	IsAuthenticated   bool               `json:"is_authenticated"`
	IsLoadingAuth     bool               `json:"is_loading_auth"`
	IsLoadingSettings bool               `json:"is_loading_settings"`
	AuthError         *AuthError         `json:"auth_error,omitempty"`
	PublicSettings    *AppPublicSettings `json:"public_settings,omitempty"`
	Revision          uint64             `json:"revision"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func (s SessionState) Loading() bool {
	return s.IsLoadingAuth || s.IsLoadingSettings
}
