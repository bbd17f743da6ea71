package limits

import (
	"errors"
	"fmt"

	"examforge/gatekeeper/pkg/limits/budget"
	"examforge/gatekeeper/pkg/limits/identity"
)

// Error types for invalid input and configuration.
var (
	// ErrInvalidIdentity is returned for empty, oversize or malformed identities.
	ErrInvalidIdentity = identity.ErrInvalidIdentity

	// ErrInvalidUnits is returned for negative or zero unit counts.
	ErrInvalidUnits = budget.ErrInvalidUnits

	// ErrUnknownPolicy is returned when a policy name is not in the catalog.
	ErrUnknownPolicy = errors.New("unknown policy")

	// ErrConfigInvalid is returned when the engine configuration is invalid.
	ErrConfigInvalid = errors.New("invalid limits configuration")
)

// ValidationError reports input rejected before any storage access.
type ValidationError struct {
	// Field names the offending argument.
	Field string

	// Message describes the problem.
	Message string

	// Err is the underlying sentinel (ErrInvalidIdentity, ErrInvalidUnits, ...).
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func validateIdentity(field, id string) error {
	if err := identity.Validate(id); err != nil {
		return &ValidationError{Field: field, Message: err.Error(), Err: err}
	}
	return nil
}

func validateUnits(field string, units int64, allowZero bool) error {
	switch {
	case units < 0:
		return &ValidationError{Field: field, Message: fmt.Sprintf("cannot be negative, got %d", units), Err: ErrInvalidUnits}
	case units == 0 && !allowZero:
		return &ValidationError{Field: field, Message: "must be positive", Err: ErrInvalidUnits}
	}
	return nil
}
