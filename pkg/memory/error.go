package memory

import "errors"

var (
	// ErrNotFound is returned when a memory does not exist.
	ErrNotFound = errors.New("memory not found")

	// ErrNotConfigured is returned when a required port is missing.
	ErrNotConfigured = errors.New("memory manager not configured")
)
