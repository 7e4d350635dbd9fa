package onboarding

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/aurahealth/internal/domain"
	apperrors "github.com/pscheid92/aurahealth/internal/platform/errors"
)

var (
	patientSteps = []string{"Personal Information", "Location & Contact", "Medical History", "Insurance Details"}
	doctorSteps  = []string{"Professional Details", "Education & Credentials", "Availability"}
)

type Step struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Snapshot is a copy of a wizard's state.
type Snapshot struct {
	Role          domain.Role `json:"role"`
	Step          int         `json:"step"`
	Steps         []Step      `json:"steps"`
	Form          any         `json:"form"`
	ReadyToSubmit bool        `json:"ready_to_submit"`
	Submitting    bool        `json:"submitting"`
}

// Wizard is a multi-step onboarding form. Steps are numbered from 1.
type Wizard struct {
	role  domain.Role
	steps []string
	clock clockwork.Clock

	mu         sync.Mutex
	form       form
	step       int
	ready      bool
	submitting bool
}

// NewPatientWizard starts a patient wizard with timezone prefilled.
func NewPatientWizard(timezone string, clock clockwork.Clock) *Wizard {
	return newWizard(domain.RolePatient, patientSteps, newPatientForm(timezone), clock)
}

func NewDoctorWizard(clock clockwork.Clock) *Wizard {
	return newWizard(domain.RoleDoctor, doctorSteps, newDoctorForm(), clock)
}

func newWizard(role domain.Role, steps []string, f form, clock clockwork.Clock) *Wizard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Wizard{role: role, steps: steps, clock: clock, form: f, step: 1}
}

func (w *Wizard) Role() domain.Role { return w.role }

// Set replaces the text field at path.
func (w *Wizard) Set(path, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}

	field, ok := w.form.fields().text[path]
	if !ok {
		return unknownField(path)
	}
	*field = value
	w.ready = false
	return nil
}

// Add appends the trimmed value to the list at path. Blank values are ignored.
func (w *Wizard) Add(path, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}

	fields := w.form.fields()
	list, ok := fields.lists[path]
	if !ok {
		return unknownField(path)
	}
	if _, isSet := fields.sets[path]; isSet {
		return apperrors.ValidationError(path+" is edited by toggling").WithContext("field", path)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	*list = append(*list, value)
	w.ready = false
	return nil
}

// Remove drops the item at index from the list at path.
func (w *Wizard) Remove(path string, index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}

	if path == "education" {
		df, ok := w.form.(*doctorForm)
		if !ok {
			return unknownField(path)
		}
		if index < 0 || index >= len(df.profile.Education) {
			return indexOutOfRange(path, index)
		}
		df.profile.Education = slices.Delete(df.profile.Education, index, index+1)
		w.ready = false
		return nil
	}

	list, ok := w.form.fields().lists[path]
	if !ok {
		return unknownField(path)
	}
	if index < 0 || index >= len(*list) {
		return indexOutOfRange(path, index)
	}
	*list = slices.Delete(*list, index, index+1)
	w.ready = false
	return nil
}

// Toggle adds value to the set at path, or removes it if present.
func (w *Wizard) Toggle(path, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}

	fields := w.form.fields()
	allowed, ok := fields.sets[path]
	if !ok {
		return unknownField(path)
	}
	if !slices.Contains(allowed, value) {
		return invalid(path, fmt.Sprintf("unknown value %q", value))
	}

	list := fields.lists[path]
	if i := slices.Index(*list, value); i >= 0 {
		*list = slices.Delete(*list, i, i+1)
	} else {
		*list = append(*list, value)
	}
	w.ready = false
	return nil
}

// AddEducation appends an education entry; every part is required.
func (w *Wizard) AddEducation(e domain.Education) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return err
	}

	df, ok := w.form.(*doctorForm)
	if !ok {
		return unknownField("education")
	}
	e.Degree = strings.TrimSpace(e.Degree)
	e.Institution = strings.TrimSpace(e.Institution)
	e.Year = strings.TrimSpace(e.Year)
	if e.Degree == "" || e.Institution == "" || e.Year == "" {
		return apperrors.ValidationError("education requires degree, institution and year").WithContext("field", "education")
	}
	df.profile.Education = append(df.profile.Education, e)
	w.ready = false
	return nil
}

// Next validates the current step and advances. On the last step it marks
// the wizard ready to submit instead and reports true.
func (w *Wizard) Next() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.editable(); err != nil {
		return false, err
	}

	if err := w.form.validate(w.step, w.clock.Now()); err != nil {
		return false, err
	}
	if w.step < len(w.steps) {
		w.step++
		return false, nil
	}
	w.ready = true
	return true, nil
}

// Back returns to the previous step. It never goes below step 1.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > 1 {
		w.step--
	}
	w.ready = false
}

func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	steps := make([]Step, len(w.steps))
	for i, title := range w.steps {
		steps[i] = Step{Number: i + 1, Title: title}
	}
	return Snapshot{
		Role:          w.role,
		Step:          w.step,
		Steps:         steps,
		Form:          w.form.snapshot(),
		ReadyToSubmit: w.ready,
		Submitting:    w.submitting,
	}
}

// beginSubmit validates every step and marks the wizard as submitting.
func (w *Wizard) beginSubmit() (form, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return nil, domain.ErrSubmitInFlight
	}

	now := w.clock.Now()
	for step := 1; step <= len(w.steps); step++ {
		if err := w.form.validate(step, now); err != nil {
			w.step = step
			w.ready = false
			return nil, err
		}
	}
	w.submitting = true
	return w.form, nil
}

func (w *Wizard) endSubmit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
}

func (w *Wizard) editable() error {
	if w.submitting {
		return domain.ErrSubmitInFlight
	}
	return nil
}

func unknownField(path string) error {
	return apperrors.ValidationError("unknown field "+path).WithContext("field", path)
}

func indexOutOfRange(path string, index int) error {
	return apperrors.ValidationError(fmt.Sprintf("%s has no item %d", path, index)).WithContext("field", path)
}
