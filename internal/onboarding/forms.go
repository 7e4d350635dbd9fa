package onboarding

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/aurahealth/internal/domain"
	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

var (
	bloodTypes    = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	relationships = []string{"spouse", "parent", "sibling", "child", "friend", "other"}
	weekdays      = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

	specializations = []string{
		"General Practitioner", "Cardiologist", "Dermatologist", "Neurologist", "Psychiatrist",
		"Pediatrician", "Orthopedic", "Gynecologist", "Oncologist", "Endocrinologist", "Other",
	}
)

// fieldSet maps dot-paths to the form fields they edit.
type fieldSet struct {
	text  map[string]*string
	lists map[string]*[]string
	// sets are lists edited by toggling known values.
	sets map[string][]string
}

type form interface {
	fields() fieldSet
	validate(step int, now time.Time) error
	snapshot() any
}

type patientForm struct {
	profile domain.PatientProfile
}

func newPatientForm(timezone string) *patientForm {
	return &patientForm{profile: domain.PatientProfile{
		Location: domain.Location{Timezone: timezone},
		MedicalHistory: domain.MedicalHistory{
			Allergies:         []string{},
			ChronicConditions: []string{},
			PastSurgeries:     []string{},
		},
	}}
}

func (f *patientForm) fields() fieldSet {
	p := &f.profile
	return fieldSet{
		text: map[string]*string{
			"date_of_birth":                  &p.DateOfBirth,
			"phone":                          &p.Phone,
			"location.city":                  &p.Location.City,
			"location.state":                 &p.Location.State,
			"location.country":               &p.Location.Country,
			"location.timezone":              &p.Location.Timezone,
			"location.postal_code":           &p.Location.PostalCode,
			"medical_history.blood_type":     &p.MedicalHistory.BloodType,
			"medical_history.family_history": &p.MedicalHistory.FamilyHistory,
			"insurance.provider":             &p.Insurance.Provider,
			"insurance.policy_number":        &p.Insurance.PolicyNumber,
			"insurance.group_number":         &p.Insurance.GroupNumber,
			"emergency_contact.name":         &p.EmergencyContact.Name,
			"emergency_contact.relationship": &p.EmergencyContact.Relationship,
			"emergency_contact.phone":        &p.EmergencyContact.Phone,
		},
		lists: map[string]*[]string{
			"medical_history.allergies":          &p.MedicalHistory.Allergies,
			"medical_history.chronic_conditions": &p.MedicalHistory.ChronicConditions,
			"medical_history.past_surgeries":     &p.MedicalHistory.PastSurgeries,
		},
	}
}

func (f *patientForm) validate(step int, now time.Time) error {
	p := f.profile
	switch step {
	case 1:
		if p.DateOfBirth == "" {
			return required("date_of_birth")
		}
		dob, err := time.Parse(time.DateOnly, p.DateOfBirth)
		if err != nil {
			return invalid("date_of_birth", "must be a date formatted YYYY-MM-DD")
		}
		if dob.After(now) {
			return invalid("date_of_birth", "must not be in the future")
		}
		if strings.TrimSpace(p.Phone) == "" {
			return required("phone")
		}
		if p.EmergencyContact.Relationship != "" && !slices.Contains(relationships, p.EmergencyContact.Relationship) {
			return invalid("emergency_contact.relationship", "must be one of "+strings.Join(relationships, ", "))
		}
	case 2:
		if strings.TrimSpace(p.Location.City) == "" {
			return required("location.city")
		}
		if strings.TrimSpace(p.Location.Country) == "" {
			return required("location.country")
		}
		if p.Location.Timezone != "" {
			if _, err := time.LoadLocation(p.Location.Timezone); err != nil {
				return invalid("location.timezone", "unknown time zone")
			}
		}
	case 3:
		if p.MedicalHistory.BloodType != "" && !slices.Contains(bloodTypes, p.MedicalHistory.BloodType) {
			return invalid("medical_history.blood_type", "must be one of "+strings.Join(bloodTypes, ", "))
		}
	case 4:
		if p.Insurance.Provider != "" && strings.TrimSpace(p.Insurance.PolicyNumber) == "" {
			return required("insurance.policy_number")
		}
	}
	return nil
}

func (f *patientForm) snapshot() any {
	p := f.profile
	p.MedicalHistory.Allergies = slices.Clone(p.MedicalHistory.Allergies)
	p.MedicalHistory.ChronicConditions = slices.Clone(p.MedicalHistory.ChronicConditions)
	p.MedicalHistory.PastSurgeries = slices.Clone(p.MedicalHistory.PastSurgeries)
	return p
}

// doctorForm keeps numeric fields as entered text until submit.
type doctorForm struct {
	profile           domain.DoctorProfile
	yearsOfExperience string
	consultationFee   string
}

// DoctorForm is the editable state of a doctor wizard.
type DoctorForm struct {
	Specialization    string              `json:"specialization"`
	LicenseNumber     string              `json:"license_number"`
	YearsOfExperience string              `json:"years_of_experience"`
	Bio               string              `json:"bio"`
	ConsultationFee   string              `json:"consultation_fee"`
	Education         []domain.Education  `json:"education"`
	Certifications    []string            `json:"certifications"`
	Languages         []string            `json:"languages"`
	Availability      domain.Availability `json:"availability"`
}

func newDoctorForm() *doctorForm {
	return &doctorForm{profile: domain.DoctorProfile{
		Education:      []domain.Education{},
		Certifications: []string{},
		Languages:      []string{},
		Availability:   domain.Availability{Days: []string{}},
	}}
}

func (f *doctorForm) fields() fieldSet {
	p := &f.profile
	return fieldSet{
		text: map[string]*string{
			"specialization":      &p.Specialization,
			"license_number":      &p.LicenseNumber,
			"years_of_experience": &f.yearsOfExperience,
			"bio":                 &p.Bio,
			"consultation_fee":    &f.consultationFee,
			"availability.hours":  &p.Availability.Hours,
		},
		lists: map[string]*[]string{
			"certifications":    &p.Certifications,
			"languages":         &p.Languages,
			"availability.days": &p.Availability.Days,
		},
		sets: map[string][]string{
			"availability.days": weekdays,
		},
	}
}

func (f *doctorForm) validate(step int, _ time.Time) error {
	p := f.profile
	switch step {
	case 1:
		if p.Specialization == "" {
			return required("specialization")
		}
		if !slices.Contains(specializations, p.Specialization) {
			return invalid("specialization", "unknown specialization")
		}
		if strings.TrimSpace(p.LicenseNumber) == "" {
			return required("license_number")
		}
		if _, err := f.years(); err != nil {
			return err
		}
		if _, err := f.fee(); err != nil {
			return err
		}
	case 3:
		for _, day := range p.Availability.Days {
			if !slices.Contains(weekdays, day) {
				return invalid("availability.days", fmt.Sprintf("unknown day %q", day))
			}
		}
	}
	return nil
}

func (f *doctorForm) years() (int, error) {
	if strings.TrimSpace(f.yearsOfExperience) == "" {
		return 0, required("years_of_experience")
	}
	years, err := strconv.Atoi(strings.TrimSpace(f.yearsOfExperience))
	if err != nil || years < 0 {
		return 0, invalid("years_of_experience", "must be a non-negative whole number")
	}
	return years, nil
}

func (f *doctorForm) fee() (float64, error) {
	if strings.TrimSpace(f.consultationFee) == "" {
		return 0, required("consultation_fee")
	}
	fee, err := strconv.ParseFloat(strings.TrimSpace(f.consultationFee), 64)
	if err != nil || fee < 0 {
		return 0, invalid("consultation_fee", "must be a non-negative number")
	}
	return fee, nil
}

func (f *doctorForm) snapshot() any {
	p := f.profile
	return DoctorForm{
		Specialization:    p.Specialization,
		LicenseNumber:     p.LicenseNumber,
		YearsOfExperience: f.yearsOfExperience,
		Bio:               p.Bio,
		ConsultationFee:   f.consultationFee,
		Education:         slices.Clone(p.Education),
		Certifications:    slices.Clone(p.Certifications),
		Languages:         slices.Clone(p.Languages),
		Availability: domain.Availability{
			Days:  slices.Clone(p.Availability.Days),
			Hours: p.Availability.Hours,
		},
	}
}

// payload converts the form into the payload for POST /doctor-profile.
func (f *doctorForm) payload(userID string) (domain.DoctorProfile, error) {
	years, err := f.years()
	if err != nil {
		return domain.DoctorProfile{}, err
	}
	fee, err := f.fee()
	if err != nil {
		return domain.DoctorProfile{}, err
	}

	p := f.snapshot().(DoctorForm)
	return domain.DoctorProfile{
		UserID:            userID,
		Specialization:    p.Specialization,
		LicenseNumber:     p.LicenseNumber,
		YearsOfExperience: years,
		Bio:               p.Bio,
		ConsultationFee:   fee,
		Education:         p.Education,
		Certifications:    p.Certifications,
		Languages:         p.Languages,
		Availability:      p.Availability,
		IsAvailable:       true,
	}, nil
}

func required(path string) error {
	return apperrors.ValidationError(path+" is required").WithContext("field", path)
}

func invalid(path, reason string) error {
	return apperrors.ValidationError(path+" "+reason).WithContext("field", path)
}
