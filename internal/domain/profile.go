package domain

type Location struct {
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	Timezone   string `json:"timezone"`
	PostalCode string `json:"postal_code"`
}

type MedicalHistory struct {
	BloodType         string   `json:"blood_type"`
	Allergies         []string `json:"allergies"`
	ChronicConditions []string `json:"chronic_conditions"`
	PastSurgeries     []string `json:"past_surgeries"`
	FamilyHistory     string   `json:"family_history"`
}

type Insurance struct {
	Provider     string `json:"provider"`
	PolicyNumber string `json:"policy_number"`
	GroupNumber  string `json:"group_number"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

type PatientProfile struct {
	DateOfBirth         string           `json:"date_of_birth"`
	Phone               string           `json:"phone"`
	Location            Location         `json:"location"`
	MedicalHistory      MedicalHistory   `json:"medical_history"`
	Insurance           Insurance        `json:"insurance"`
	EmergencyContact    EmergencyContact `json:"emergency_contact"`
	OnboardingCompleted bool             `json:"onboarding_completed"`
}

type Education struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Year        string `json:"year"`
}

type Availability struct {
	Days  []string `json:"days"`
	Hours string   `json:"hours"`
}

type DoctorProfile struct {
	UserID             string       `json:"user_id"`
	Specialization     string       `json:"specialization"`
	LicenseNumber      string       `json:"license_number"`
	YearsOfExperience  int          `json:"years_of_experience"`
	Bio                string       `json:"bio"`
	ConsultationFee    float64      `json:"consultation_fee"`
	Education          []Education  `json:"education"`
	Certifications     []string     `json:"certifications"`
	Languages          []string     `json:"languages"`
	Availability       Availability `json:"availability"`
	IsVerified         bool         `json:"is_verified"`
	IsAvailable        bool         `json:"is_available"`
	Rating             float64      `json:"rating"`
	TotalConsultations int          `json:"total_consultations"`
}
