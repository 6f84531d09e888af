package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrValidation indicates a request failed validation before dispatch
	ErrValidation = errors.New("validation failed")

	// ErrBackendUnavailable indicates the backend process is unreachable
	ErrBackendUnavailable = errors.New("backend is unreachable")

	// ErrConflict indicates the operation conflicts with current entity state
	ErrConflict = errors.New("operation conflicts with entity state")
)
