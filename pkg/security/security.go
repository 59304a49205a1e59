// Package security provides input validation and sanitization for
// user-supplied form data before it reaches any store.
package security

import (
	"fmt"
	"regexp"
	"strings"

	"strokeregistry/pkg/domain"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	htmlTag      = regexp.MustCompile(`<[^>]*>`)
)

var dangerousEmailFragments = []string{"<", ">", `"`, "'", ";", "--", "/*", "*/"}

// SanitizeText strips HTML tags and trims surrounding whitespace.
func SanitizeText(text string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(text, ""))
}

// ValidateEmail normalizes and validates an email address.
// Returns the lowercased address or an error describing the problem.
func ValidateEmail(email string) (string, error) {
	email = strings.ToLower(SanitizeText(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	if !emailPattern.MatchString(email) {
		return "", fmt.Errorf("invalid email format")
	}
	for _, frag := range dangerousEmailFragments {
		if strings.Contains(email, frag) {
			return "", fmt.Errorf("email contains invalid characters")
		}
	}
	return email, nil
}

// ValidatePatient checks ranges and enums on a patient record and
// sanitizes its free-text fields in place.
func ValidatePatient(p *domain.Patient) error {
	if p.ID <= 0 {
		return fmt.Errorf("patient id must be a positive integer")
	}
	if p.Age < 0 || p.Age > 150 {
		return fmt.Errorf("age must be between 0 and 150")
	}
	p.Gender = SanitizeText(p.Gender)
	switch p.Gender {
	case "Male", "Female", "Other":
	default:
		return fmt.Errorf("invalid gender value")
	}
	for name, v := range map[string]int{
		"hypertension":  p.Hypertension,
		"heart_disease": p.HeartDisease,
		"stroke":        p.Stroke,
	} {
		if v != 0 && v != 1 {
			return fmt.Errorf("invalid %s value (must be 0 or 1)", name)
		}
	}
	if p.AvgGlucoseLevel < 0 || p.AvgGlucoseLevel > 500 {
		return fmt.Errorf("average glucose level must be between 0 and 500")
	}
	if p.BMI < 0 || p.BMI > 100 {
		return fmt.Errorf("bmi must be between 0 and 100")
	}
	p.EverMarried = SanitizeText(p.EverMarried)
	p.WorkType = SanitizeText(p.WorkType)
	p.ResidenceType = SanitizeText(p.ResidenceType)
	p.SmokingStatus = SanitizeText(p.SmokingStatus)
	return nil
}
