package service

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation is wrapped by every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidRideID is returned when a ride ID is not positive.
	ErrInvalidRideID = errors.New("invalid ride id")

	// ErrInvalidUserID is returned when a user ID is not positive.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidCredentials is returned when a username/password pair does not authenticate.
	ErrInvalidCredentials = errors.New("unable to log in with provided credentials")
)

// ValidationError carries field-level validation messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// fieldErrors collects validation messages, keeping the first per field.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
