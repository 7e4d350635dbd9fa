package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/aurahealth/internal/domain"
	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

// Session is the part of the session bootstrapper the wizards need.
type Session interface {
	State() domain.SessionState
	UpdateUser(user *domain.User)
	RefreshUser(ctx context.Context) error
}

// Service owns one wizard per role for the signed-in user. Wizards belong
// to the user they were started for and are dropped when that user signs
// out or another one signs in.
type Service struct {
	auth     domain.AuthAPI
	profiles domain.ProfileAPI
	session  Session
	clock    clockwork.Clock
	timezone string

	mu      sync.Mutex
	owner   string
	wizards map[domain.Role]*Wizard
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithTimezone sets the timezone prefilled into new patient wizards.
func WithTimezone(name string) Option {
	return func(s *Service) { s.timezone = name }
}

func NewService(auth domain.AuthAPI, profiles domain.ProfileAPI, session Session, opts ...Option) *Service {
	s := &Service{
		auth:     auth,
		profiles: profiles,
		session:  session,
		clock:    clockwork.NewRealClock(),
		timezone: time.Local.String(),
		wizards:  make(map[domain.Role]*Wizard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wizard returns the current user's wizard for role, starting a new one if
// needed.
func (s *Service) Wizard(role domain.Role) (*Wizard, error) {
	owner := ""
	if user := s.session.State().CurrentUser; user != nil {
		owner = user.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.adopt(owner)
	if w, ok := s.wizards[role]; ok {
		return w, nil
	}

	var w *Wizard
	switch role {
	case domain.RolePatient:
		w = NewPatientWizard(s.timezone, s.clock)
	case domain.RoleDoctor:
		w = NewDoctorWizard(s.clock)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownRole, role)
	}
	s.wizards[role] = w
	return w, nil
}

// Reset discards the wizard for role.
func (s *Service) Reset(role domain.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wizards, role)
}

// SessionChanged is a session subscriber. It drops all wizards when the
// session ends, is blocked, or belongs to a different user.
func (s *Service) SessionChanged(state domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case state.CurrentUser != nil:
		s.adopt(state.CurrentUser.ID)
	case state.Phase == domain.PhaseNoSession, state.AuthError.Blocking():
		s.adopt("")
	}
}

// adopt hands the wizards to owner, discarding any started for someone
// else. The caller holds s.mu.
func (s *Service) adopt(owner string) {
	if owner == s.owner {
		return
	}
	if len(s.wizards) > 0 {
		slog.Info("Discarding onboarding wizards of previous user", "count", len(s.wizards))
	}
	clear(s.wizards)
	s.owner = owner
}

// discard removes w unless it was already replaced.
func (s *Service) discard(role domain.Role, w *Wizard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wizards[role] == w {
		delete(s.wizards, role)
	}
}

// Submit validates every step, records the role with PATCH /auth/me,
// creates the role profile and only then marks onboarding as completed.
// On success the session's cached user is replaced and the wizard is
// discarded.
func (s *Service) Submit(ctx context.Context, role domain.Role) (*domain.User, error) {
	w, err := s.Wizard(role)
	if err != nil {
		return nil, err
	}

	f, err := w.beginSubmit()
	if err != nil {
		if errors.Is(err, domain.ErrSubmitInFlight) {
			return nil, apperrors.ConflictError("onboarding submit already in progress")
		}
		return nil, err
	}
	defer w.endSubmit()

	current := s.session.State().CurrentUser
	if current == nil {
		return nil, apperrors.UnauthorizedError("sign in before completing onboarding")
	}

	user, err := s.auth.UpdateMe(ctx, domain.UserPatch{UserType: &role})
	if err != nil {
		return nil, apperrors.ExternalError("failed to update user", err)
	}
	s.session.UpdateUser(user)

	switch form := f.(type) {
	case *patientForm:
		profile := form.snapshot().(domain.PatientProfile)
		profile.OnboardingCompleted = true
		err = s.profiles.CreatePatientProfile(ctx, profile)
	case *doctorForm:
		var profile domain.DoctorProfile
		profile, err = form.payload(current.ID)
		if err == nil {
			err = s.profiles.CreateDoctorProfile(ctx, profile)
		}
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create profile", "role", role, "error", err)
		return nil, apperrors.ExternalError("failed to create profile", err).WithContext("role", string(role))
	}

	completed := true
	user, err = s.auth.UpdateMe(ctx, domain.UserPatch{OnboardingCompleted: &completed})
	if err != nil {
		// The profile exists; the backend may or may not have the flag.
		if refreshErr := s.session.RefreshUser(ctx); refreshErr != nil {
			slog.WarnContext(ctx, "Failed to refresh user after onboarding", "error", refreshErr)
		}
		return nil, apperrors.ExternalError("failed to complete onboarding", err).WithContext("role", string(role))
	}

	slog.InfoContext(ctx, "Onboarding completed", "role", role, "user_id", user.ID)
	s.session.UpdateUser(user)
	s.discard(role, w)
	return user, nil
}

// SelectRole records the user's role without completing onboarding.
func (s *Service) SelectRole(ctx context.Context, role domain.Role) (*domain.User, error) {
	if role != domain.RolePatient && role != domain.RoleDoctor {
		return nil, apperrors.ValidationError("role must be patient or doctor").WithContext("role", string(role))
	}
	if s.session.State().CurrentUser == nil {
		return nil, apperrors.UnauthorizedError("sign in before selecting a role")
	}

	user, err := s.auth.UpdateMe(ctx, domain.UserPatch{UserType: &role})
	if err != nil {
		return nil, apperrors.ExternalError("failed to update user", err)
	}
	s.session.UpdateUser(user)
	return user, nil
}
