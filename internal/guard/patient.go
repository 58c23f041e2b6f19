package guard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var ErrInvalidPatient = errors.New("invalid patient data")

const (
	MinAge       = 0
	MaxAge       = 120
	DefaultAge   = 25
	MaxFieldSize = 4000
)

// Genders lists the accepted values, in form order.
var Genders = []string{"Male", "Female", "Other"}

// Patient is the intake data a consultation starts from.
type Patient struct {
	Gender         string `json:"gender"`
	Age            int    `json:"age"`
	Symptoms       string `json:"symptoms"`
	MedicalHistory string `json:"medical_history"`
}

// Normalize trims whitespace and canonicalizes the gender casing.
func (p *Patient) Normalize() {
	p.Gender = strings.TrimSpace(p.Gender)
	for _, g := range Genders {
		if strings.EqualFold(p.Gender, g) {
			p.Gender = g
			break
		}
	}
	p.Symptoms = strings.TrimSpace(p.Symptoms)
	p.MedicalHistory = strings.TrimSpace(p.MedicalHistory)
}

// ValidatePatient checks the intake fields. Errors wrap ErrInvalidPatient.
func ValidatePatient(p Patient) error {
	if !validGender(p.Gender) {
		return fmt.Errorf("%w: gender must be one of %s", ErrInvalidPatient, strings.Join(Genders, ", "))
	}
	if p.Age < MinAge || p.Age > MaxAge {
		return fmt.Errorf("%w: age %d out of range [%d, %d]", ErrInvalidPatient, p.Age, MinAge, MaxAge)
	}
	if strings.TrimSpace(p.Symptoms) == "" {
		return fmt.Errorf("%w: symptoms are required", ErrInvalidPatient)
	}
	if utf8.RuneCountInString(p.Symptoms) > MaxFieldSize {
		return fmt.Errorf("%w: symptoms exceed %d characters", ErrInvalidPatient, MaxFieldSize)
	}
	if utf8.RuneCountInString(p.MedicalHistory) > MaxFieldSize {
		return fmt.Errorf("%w: medical history exceeds %d characters", ErrInvalidPatient, MaxFieldSize)
	}
	return nil
}

// ParseAge parses a form value; empty means DefaultAge.
func ParseAge(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAge, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: age %q is not a number", ErrInvalidPatient, raw)
	}
	return n, nil
}

// Inputs is the variable set interpolated into task descriptions.
func (p Patient) Inputs() map[string]string {
	return map[string]string{
		"gender":          p.Gender,
		"age":             strconv.Itoa(p.Age),
		"symptoms":        p.Symptoms,
		"medical_history": p.MedicalHistory,
	}
}

func validGender(g string) bool {
	for _, v := range Genders {
		if g == v {
			return true
		}
	}
	return false
}
