package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("entity already exists")

	// ErrInvalidReference is returned when a write points at a row that does not exist.
	ErrInvalidReference = errors.New("referenced entity does not exist")
)

// ReferenceError names the column of a write whose referenced row is missing.
type ReferenceError struct {
	Field string
}

func (e *ReferenceError) Error() string {
	return ErrInvalidReference.Error() + ": " + e.Field
}

func (e *ReferenceError) Unwrap() error {
	return ErrInvalidReference
}
