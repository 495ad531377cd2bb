package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors for models
var (
	// Run errors
	ErrInvalidPrompt    = errors.New("prompt is required")
	ErrInvalidRunStatus = errors.New("invalid run status")
	ErrInvalidRunPhase  = errors.New("invalid run phase")

	// Message errors
	ErrInvalidMessageRun  = errors.New("message must belong to a run")
	ErrInvalidMessageRole = errors.New("invalid message role")

	// Skill errors
	ErrInvalidSkillID = errors.New("skill id is required")
)

// ValidationErrors accumulates per-field validation failures.
type ValidationErrors struct {
	fields []fieldError
}

type fieldError struct {
	field string
	err   error
}

// Add records a validation error for a field.
func (v *ValidationErrors) Add(field string, err error) {
	v.fields = append(v.fields, fieldError{field: field, err: err})
}

// AddMessage records a validation failure message for a field.
func (v *ValidationErrors) AddMessage(field, message string) {
	v.Add(field, errors.New(message))
}

// Err returns the accumulated error, or nil if nothing was recorded.
func (v *ValidationErrors) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return v
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	parts := make([]string, 0, len(v.fields))
	for _, f := range v.fields {
		parts = append(parts, fmt.Sprintf("%s: %v", f.field, f.err))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the underlying field errors for errors.Is checks.
func (v *ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v.fields))
	for _, f := range v.fields {
		errs = append(errs, f.err)
	}
	return errs
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	var v *ValidationErrors
	return errors.As(err, &v)
}
