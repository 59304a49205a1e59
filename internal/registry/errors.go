package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is shown to end users on bad logins. The
	// wording is deliberately generic so it cannot be used to enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned when registering an existing address.
	ErrEmailTaken = errors.New("email already registered")

	// ErrDuplicateID is returned when a patient id is already live.
	ErrDuplicateID = errors.New("patient id already exists")

	// ErrPatientNotFound is returned for operations on absent records.
	ErrPatientNotFound = errors.New("patient not found")
)

// ValidationError reports malformed or out-of-range input. It is always
// recovered locally and surfaced to the caller as a rejection.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

func validationErr(reason string) error {
	return &ValidationError{Reason: reason}
}
