package domain

import "fmt"

type Role string

const (
	RoleUnset   Role = ""
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor:
		return Role(s), nil
	}
	return RoleUnset, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// User is the backend's record of the signed-in person.
type User struct {
	ID                  string `json:"id"`
	Email               string `json:"email"`
	FullName            string `json:"full_name,omitempty"`
	UserType            Role   `json:"user_type,omitempty"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// Clone returns a copy safe to hand to subscribers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// UserPatch is the body of PATCH /auth/me. Nil fields are left untouched.
type UserPatch struct {
	UserType            *Role   `json:"user_type,omitempty"`
	OnboardingCompleted *bool   `json:"onboarding_completed,omitempty"`
	FullName            *string `json:"full_name,omitempty"`
}

type SignupRequest struct {
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role,omitempty"`
	UserName string `json:"userName,omitempty"`
}
