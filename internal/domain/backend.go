package domain

import "context"

// AuthAPI is the backend's auth surface. Login and Signup take the token explicitly;
// everything else authenticates with the current TokenSource.
type AuthAPI interface {
	Login(ctx context.Context, token string) (*User, error)
	Signup(ctx context.Context, token string, req SignupRequest) (*User, error)
	Me(ctx context.Context) (*User, error)
	UpdateMe(ctx context.Context, patch UserPatch) (*User, error)
	PublicSettings(ctx context.Context, appID string) (*AppPublicSettings, error)
}

type ProfileAPI interface {
	CreatePatientProfile(ctx context.Context, profile PatientProfile) error
	CreateDoctorProfile(ctx context.Context, profile DoctorProfile) error
}
