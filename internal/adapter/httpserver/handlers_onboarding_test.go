package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/aurahealth/internal/domain"
	"github.com/pscheid92/aurahealth/internal/onboarding"
	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

func postJSON(srv *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serve(srv, withCSRF(srv, req))
}

// wizardSnapshot decodes a doctor wizard response.
func wizardSnapshot(t *testing.T, rec *httptest.ResponseRecorder) (onboarding.Snapshot, onboarding.DoctorForm) {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var raw struct {
		onboarding.Snapshot
		Form onboarding.DoctorForm `json:"form"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	return raw.Snapshot, raw.Form
}

func newSignedInServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()
	srv, deps := newTestServer(t)
	deps.session.set(authenticated(domain.User{ID: "u1", UserType: domain.RoleDoctor}))
	return srv, deps
}

func TestOnboardingRoutes_RequireSignIn(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, rec := range []*httptest.ResponseRecorder{
		serve(srv, httptest.NewRequest(http.MethodGet, "/api/onboarding/doctor", nil)),
		serve(srv, httptest.NewRequest(http.MethodGet, "/onboarding/doctor", nil)),
		postJSON(srv, "/api/onboarding/doctor/field", `{"path":"bio","value":"x"}`),
		postJSON(srv, "/api/role", `{"role":"doctor"}`),
	} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestOnboarding_UnknownRole(t *testing.T) {
	srv, _ := newSignedInServer(t)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/api/onboarding/nurse", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "nurse", decodeError(t, rec).Context["role"])
}

func TestOnboarding_GetWizard(t *testing.T) {
	srv, _ := newSignedInServer(t)

	snap, form := wizardSnapshot(t, serve(srv, httptest.NewRequest(http.MethodGet, "/onboarding/doctor", nil)))

	assert.Equal(t, domain.RoleDoctor, snap.Role)
	assert.Equal(t, 1, snap.Step)
	assert.Len(t, snap.Steps, 3)
	assert.Empty(t, form.Specialization)
}

func TestOnboarding_EditFields(t *testing.T) {
	srv, _ := newSignedInServer(t)

	_, form := wizardSnapshot(t, postJSON(srv, "/api/onboarding/doctor/field", `{"path":"specialization","value":"Cardiologist"}`))
	assert.Equal(t, "Cardiologist", form.Specialization)

	_, form = wizardSnapshot(t, postJSON(srv, "/api/onboarding/doctor/items", `{"path":"languages","value":"  German  "}`))
	assert.Equal(t, []string{"German"}, form.Languages)

	_, form = wizardSnapshot(t, postJSON(srv, "/api/onboarding/doctor/items", `{"path":"languages","value":"   "}`))
	assert.Equal(t, []string{"German"}, form.Languages)

	_, form = wizardSnapshot(t, postJSON(srv, "/api/onboarding/doctor/items/remove", `{"path":"languages","index":0}`))
	assert.Empty(t, form.Languages)

	_, form = wizardSnapshot(t, postJSON(srv, "/api/onboarding/doctor/toggle", `{"path":"availability.days","value":"Monday"}`))
	assert.Equal(t, []string{"Monday"}, form.Availability.Days)

	_, form = wizardSnapshot(t, postJSON(srv, "/api/onboarding/doctor/education", `{"degree":"MD","institution":"Charité","year":"2010"}`))
	require.Len(t, form.Education, 1)
	assert.Equal(t, "Charité", form.Education[0].Institution)
}

func TestOnboarding_EditRejections(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		body      string
		wantField string
	}{
		{"unknown field", "/field", `{"path":"nickname","value":"x"}`, "nickname"},
		{"index out of range", "/items/remove", `{"path":"languages","index":3}`, "languages"},
		{"incomplete education", "/education", `{"degree":"MD"}`, "education"},
		{"unknown weekday", "/toggle", `{"path":"availability.days","value":"Funday"}`, "availability.days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newSignedInServer(t)

			rec := postJSON(srv, "/api/onboarding/doctor"+tt.path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, apperrors.TypeValidation, resp.Type)
			assert.Equal(t, tt.wantField, resp.Context["field"])
		})
	}
}

func TestOnboarding_MalformedBody(t *testing.T) {
	srv, _ := newSignedInServer(t)

	rec := postJSON(srv, "/api/onboarding/doctor/field", `{"path":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decodeError(t, rec).Error)
}

func TestOnboarding_NextAndBack(t *testing.T) {
	srv, _ := newSignedInServer(t)

	rec := postJSON(srv, "/api/onboarding/doctor/next", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "specialization", decodeError(t, rec).Context["field"])

	for path, value := range map[string]string{
		"specialization":      "Cardiologist",
		"license_number":      "LIC-42",
		"years_of_experience": "12",
		"consultation_fee":    "80",
	} {
		require.Equal(t, http.StatusOK, postJSON(srv, "/api/onboarding/doctor/field", `{"path":"`+path+`","value":"`+value+`"}`).Code)
	}

	var next nextResponse
	for step := 2; step <= 3; step++ {
		rec = postJSON(srv, "/api/onboarding/doctor/next", `{}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
		assert.False(t, next.ReadyToSubmit)
		assert.Equal(t, step, next.Wizard.Step)
	}

	rec = postJSON(srv, "/api/onboarding/doctor/next", `{}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.True(t, next.ReadyToSubmit)
	assert.True(t, next.Wizard.ReadyToSubmit)

	snap, _ := wizardSnapshot(t, postJSON(srv, "/api/onboarding/doctor/back", `{}`))
	assert.Equal(t, 2, snap.Step)
	assert.False(t, snap.ReadyToSubmit)
}

func TestOnboarding_Submit(t *testing.T) {
	srv, deps := newSignedInServer(t)
	var gotRole domain.Role
	deps.onboarding.submitFn = func(_ context.Context, role domain.Role) (*domain.User, error) {
		gotRole = role
		return &domain.User{ID: "u1", UserType: role, OnboardingCompleted: true}, nil
	}

	rec := postJSON(srv, "/api/onboarding/doctor/submit", `{}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RoleDoctor, gotRole)
	var user domain.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.True(t, user.OnboardingCompleted)
}

func TestOnboarding_SubmitErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"in flight", apperrors.ConflictError("onboarding submit already in progress"), http.StatusConflict},
		{"backend failure", apperrors.ExternalError("failed to update user", errors.New("502")), http.StatusBadGateway},
		{"step invalid", apperrors.ValidationError("specialization is required").WithContext("field", "specialization"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, deps := newSignedInServer(t)
			deps.onboarding.submitFn = func(context.Context, domain.Role) (*domain.User, error) {
				return nil, tt.err
			}

			rec := postJSON(srv, "/api/onboarding/doctor/submit", `{}`)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestSelectRole(t *testing.T) {
	srv, deps := newSignedInServer(t)
	deps.onboarding.selectRoleFn = func(_ context.Context, role domain.Role) (*domain.User, error) {
		if role != domain.RolePatient && role != domain.RoleDoctor {
			return nil, apperrors.ValidationError("role must be patient or doctor")
		}
		return &domain.User{ID: "u1", UserType: role}, nil
	}

	rec := postJSON(srv, "/api/role", `{"role":"patient"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_type":"patient"`)

	rec = postJSON(srv, "/api/role", `{"role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
