package onboarding

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/aurahealth/internal/domain"
	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPatientWizard() *Wizard {
	return NewPatientWizard("Europe/Berlin", clockwork.NewFakeClockAt(testNow))
}

func newTestDoctorWizard() *Wizard {
	return NewDoctorWizard(clockwork.NewFakeClockAt(testNow))
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	structured := apperrors.AsStructuredError(err)
	require.NotNil(t, structured)
	assert.Equal(t, apperrors.TypeValidation, structured.Type)
	assert.Equal(t, field, structured.Context["field"])
}

func fillPatient(t *testing.T, w *Wizard) {
	t.Helper()
	for path, value := range map[string]string{
		"date_of_birth":                  "1990-04-12",
		"phone":                          "+1 555 123 4567",
		"emergency_contact.name":         "John Doe",
		"emergency_contact.relationship": "spouse",
		"location.city":                  "Berlin",
		"location.country":               "Germany",
		"medical_history.blood_type":     "O+",
		"insurance.provider":             "TK",
		"insurance.policy_number":        "P-123",
	} {
		require.NoError(t, w.Set(path, value))
	}
}

func fillDoctor(t *testing.T, w *Wizard) {
	t.Helper()
	require.NoError(t, w.Set("specialization", "Cardiologist"))
	require.NoError(t, w.Set("license_number", "LIC-42"))
	require.NoError(t, w.Set("years_of_experience", "12"))
	require.NoError(t, w.Set("consultation_fee", "80.5"))
}

func TestPatientWizard_InitialSnapshot(t *testing.T) {
	w := newTestPatientWizard()

	snap := w.Snapshot()
	assert.Equal(t, domain.RolePatient, snap.Role)
	assert.Equal(t, 1, snap.Step)
	require.Len(t, snap.Steps, 4)
	assert.Equal(t, "Personal Information", snap.Steps[0].Title)
	assert.Equal(t, "Insurance Details", snap.Steps[3].Title)
	form := snap.Form.(domain.PatientProfile)
	assert.Equal(t, "Europe/Berlin", form.Location.Timezone)
	assert.NotNil(t, form.MedicalHistory.Allergies)
}

func TestDoctorWizard_Steps(t *testing.T) {
	snap := newTestDoctorWizard().Snapshot()

	assert.Equal(t, domain.RoleDoctor, snap.Role)
	assert.Equal(t, []Step{
		{Number: 1, Title: "Professional Details"},
		{Number: 2, Title: "Education & Credentials"},
		{Number: 3, Title: "Availability"},
	}, snap.Steps)
}

func TestWizard_SetNestedPath(t *testing.T) {
	w := newTestPatientWizard()

	require.NoError(t, w.Set("location.city", "Lisbon"))
	require.NoError(t, w.Set("emergency_contact.phone", "+351 1"))

	form := w.Snapshot().Form.(domain.PatientProfile)
	assert.Equal(t, "Lisbon", form.Location.City)
	assert.Equal(t, "+351 1", form.EmergencyContact.Phone)
}

func TestWizard_UnknownPath(t *testing.T) {
	w := newTestPatientWizard()

	requireValidation(t, w.Set("location.planet", "Mars"), "location.planet")
	requireValidation(t, w.Add("specialization", "x"), "specialization")
	requireValidation(t, w.Toggle("availability.days", "Monday"), "availability.days")
	requireValidation(t, w.AddEducation(domain.Education{Degree: "MD"}), "education")
}

func TestWizard_AddTrimsAndIgnoresBlank(t *testing.T) {
	w := newTestPatientWizard()

	require.NoError(t, w.Add("medical_history.allergies", "  peanuts "))
	require.NoError(t, w.Add("medical_history.allergies", "   "))
	require.NoError(t, w.Add("medical_history.allergies", "pollen"))

	form := w.Snapshot().Form.(domain.PatientProfile)
	assert.Equal(t, []string{"peanuts", "pollen"}, form.MedicalHistory.Allergies)
}

func TestWizard_Remove(t *testing.T) {
	w := newTestPatientWizard()
	require.NoError(t, w.Add("medical_history.chronic_conditions", "asthma"))
	require.NoError(t, w.Add("medical_history.chronic_conditions", "diabetes"))
	require.NoError(t, w.Add("medical_history.chronic_conditions", "migraine"))

	require.NoError(t, w.Remove("medical_history.chronic_conditions", 1))
	requireValidation(t, w.Remove("medical_history.chronic_conditions", 5), "medical_history.chronic_conditions")
	requireValidation(t, w.Remove("medical_history.chronic_conditions", -1), "medical_history.chronic_conditions")

	form := w.Snapshot().Form.(domain.PatientProfile)
	assert.Equal(t, []string{"asthma", "migraine"}, form.MedicalHistory.ChronicConditions)
}

func TestWizard_SnapshotIsACopy(t *testing.T) {
	w := newTestPatientWizard()
	require.NoError(t, w.Add("medical_history.allergies", "peanuts"))

	form := w.Snapshot().Form.(domain.PatientProfile)
	form.MedicalHistory.Allergies[0] = "tampered"

	again := w.Snapshot().Form.(domain.PatientProfile)
	assert.Equal(t, "peanuts", again.MedicalHistory.Allergies[0])
}

func TestPatientWizard_StepValidation(t *testing.T) {
	tests := []struct {
		name  string
		edits map[string]string
		field string
	}{
		{"missing date of birth", map[string]string{"phone": "1"}, "date_of_birth"},
		{"malformed date of birth", map[string]string{"date_of_birth": "12/04/1990", "phone": "1"}, "date_of_birth"},
		{"future date of birth", map[string]string{"date_of_birth": "2030-01-01", "phone": "1"}, "date_of_birth"},
		{"missing phone", map[string]string{"date_of_birth": "1990-01-01"}, "phone"},
		{"unknown relationship", map[string]string{"date_of_birth": "1990-01-01", "phone": "1", "emergency_contact.relationship": "coworker"}, "emergency_contact.relationship"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestPatientWizard()
			for path, value := range tt.edits {
				require.NoError(t, w.Set(path, value))
			}

			_, err := w.Next()

			requireValidation(t, err, tt.field)
			assert.Equal(t, 1, w.Snapshot().Step)
		})
	}
}

func TestPatientWizard_LaterStepValidation(t *testing.T) {
	w := newTestPatientWizard()
	require.NoError(t, w.Set("date_of_birth", "1990-01-01"))
	require.NoError(t, w.Set("phone", "1"))
	_, err := w.Next()
	require.NoError(t, err)

	_, err = w.Next()
	requireValidation(t, err, "location.city")

	require.NoError(t, w.Set("location.city", "Berlin"))
	require.NoError(t, w.Set("location.country", "Germany"))
	require.NoError(t, w.Set("location.timezone", "Mars/Olympus"))
	_, err = w.Next()
	requireValidation(t, err, "location.timezone")

	require.NoError(t, w.Set("location.timezone", "Europe/Berlin"))
	_, err = w.Next()
	require.NoError(t, err)

	require.NoError(t, w.Set("medical_history.blood_type", "C+"))
	_, err = w.Next()
	requireValidation(t, err, "medical_history.blood_type")

	require.NoError(t, w.Set("medical_history.blood_type", ""))
	_, err = w.Next()
	require.NoError(t, err)

	require.NoError(t, w.Set("insurance.provider", "TK"))
	_, err = w.Next()
	requireValidation(t, err, "insurance.policy_number")
}

func TestPatientWizard_WalkToSubmit(t *testing.T) {
	w := newTestPatientWizard()
	fillPatient(t, w)

	for step := 1; step < 4; step++ {
		ready, err := w.Next()
		require.NoError(t, err)
		assert.False(t, ready)
		assert.Equal(t, step+1, w.Snapshot().Step)
	}

	ready, err := w.Next()
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Equal(t, 4, w.Snapshot().Step)
	assert.True(t, w.Snapshot().ReadyToSubmit)

	require.NoError(t, w.Set("phone", "+1 555 000"))
	assert.False(t, w.Snapshot().ReadyToSubmit)
}

func TestWizard_BackStopsAtFirstStep(t *testing.T) {
	w := newTestPatientWizard()
	fillPatient(t, w)
	_, err := w.Next()
	require.NoError(t, err)

	w.Back()
	assert.Equal(t, 1, w.Snapshot().Step)
	w.Back()
	w.Back()
	assert.Equal(t, 1, w.Snapshot().Step)
}

func TestDoctorWizard_ProfessionalDetailsValidation(t *testing.T) {
	tests := []struct {
		name  string
		edits map[string]string
		field string
	}{
		{"missing specialization", map[string]string{}, "specialization"},
		{"unknown specialization", map[string]string{"specialization": "Wizard"}, "specialization"},
		{"missing license", map[string]string{"specialization": "Other"}, "license_number"},
		{"missing years", map[string]string{"specialization": "Other", "license_number": "L"}, "years_of_experience"},
		{"negative years", map[string]string{"specialization": "Other", "license_number": "L", "years_of_experience": "-2"}, "years_of_experience"},
		{"fractional years", map[string]string{"specialization": "Other", "license_number": "L", "years_of_experience": "2.5"}, "years_of_experience"},
		{"missing fee", map[string]string{"specialization": "Other", "license_number": "L", "years_of_experience": "3"}, "consultation_fee"},
		{"bad fee", map[string]string{"specialization": "Other", "license_number": "L", "years_of_experience": "3", "consultation_fee": "free"}, "consultation_fee"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestDoctorWizard()
			for path, value := range tt.edits {
				require.NoError(t, w.Set(path, value))
			}

			_, err := w.Next()

			requireValidation(t, err, tt.field)
		})
	}
}

func TestDoctorWizard_ToggleDays(t *testing.T) {
	w := newTestDoctorWizard()

	require.NoError(t, w.Toggle("availability.days", "Monday"))
	require.NoError(t, w.Toggle("availability.days", "Friday"))
	require.NoError(t, w.Toggle("availability.days", "Monday"))
	requireValidation(t, w.Toggle("availability.days", "Funday"), "availability.days")
	requireValidation(t, w.Add("availability.days", "Monday"), "availability.days")

	form := w.Snapshot().Form.(DoctorForm)
	assert.Equal(t, []string{"Friday"}, form.Availability.Days)
}

func TestDoctorWizard_Education(t *testing.T) {
	w := newTestDoctorWizard()

	requireValidation(t, w.AddEducation(domain.Education{Degree: "MD", Institution: "Charité"}), "education")
	require.NoError(t, w.AddEducation(domain.Education{Degree: " MD ", Institution: "Charité", Year: "2010"}))
	require.NoError(t, w.AddEducation(domain.Education{Degree: "PhD", Institution: "LMU", Year: "2014"}))
	require.NoError(t, w.Remove("education", 0))
	requireValidation(t, w.Remove("education", 3), "education")

	form := w.Snapshot().Form.(DoctorForm)
	assert.Equal(t, []domain.Education{{Degree: "PhD", Institution: "LMU", Year: "2014"}}, form.Education)
}

func TestDoctorWizard_Payload(t *testing.T) {
	w := newTestDoctorWizard()
	fillDoctor(t, w)
	require.NoError(t, w.Add("languages", "English"))
	require.NoError(t, w.Add("certifications", "ACLS"))
	require.NoError(t, w.Set("availability.hours", "9-5"))
	require.NoError(t, w.Toggle("availability.days", "Tuesday"))

	f, err := w.beginSubmit()
	require.NoError(t, err)
	profile, err := f.(*doctorForm).payload("u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", profile.UserID)
	assert.Equal(t, 12, profile.YearsOfExperience)
	assert.InDelta(t, 80.5, profile.ConsultationFee, 0.001)
	assert.Equal(t, []string{"English"}, profile.Languages)
	assert.Equal(t, domain.Availability{Days: []string{"Tuesday"}, Hours: "9-5"}, profile.Availability)
	assert.True(t, profile.IsAvailable)
	assert.False(t, profile.IsVerified)
	assert.Zero(t, profile.Rating)
	assert.Zero(t, profile.TotalConsultations)
}

func TestWizard_EditsBlockedWhileSubmitting(t *testing.T) {
	w := newTestDoctorWizard()
	fillDoctor(t, w)

	_, err := w.beginSubmit()
	require.NoError(t, err)
	assert.True(t, w.Snapshot().Submitting)

	assert.ErrorIs(t, w.Set("bio", "x"), domain.ErrSubmitInFlight)
	_, err = w.beginSubmit()
	assert.ErrorIs(t, err, domain.ErrSubmitInFlight)

	w.endSubmit()
	assert.NoError(t, w.Set("bio", "x"))
}

func TestWizard_BeginSubmitJumpsToFirstInvalidStep(t *testing.T) {
	w := newTestPatientWizard()
	fillPatient(t, w)
	for range 3 {
		_, err := w.Next()
		require.NoError(t, err)
	}
	require.NoError(t, w.Set("location.city", ""))

	_, err := w.beginSubmit()

	requireValidation(t, err, "location.city")
	assert.Equal(t, 2, w.Snapshot().Step)
	assert.False(t, w.Snapshot().Submitting)
}
