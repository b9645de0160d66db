// Package repository defines the storage error taxonomy shared by all
// persistence backends. Callers branch on these sentinels with errors.Is
// instead of inspecting driver-specific error values.
package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint was violated.
	ErrConflict = errors.New("repository: conflict")
	// ErrForeignKey indicates a referenced record does not exist.
	ErrForeignKey = errors.New("repository: foreign key violation")
	// ErrCheckViolation indicates a stored value failed a table check constraint.
	ErrCheckViolation = errors.New("repository: check violation")
	// ErrUnavailable indicates the backend could not be reached.
	ErrUnavailable = errors.New("repository: storage unavailable")
)
