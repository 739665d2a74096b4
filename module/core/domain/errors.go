package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced vehicle, geofence, membership or alert does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed shapes, out of range coordinates and bad input.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrency reports an internal invariant violation such as two writers
	// committing against the same status version. It fails the operation only.
	ErrConcurrency = errors.New("concurrent modification")
)
