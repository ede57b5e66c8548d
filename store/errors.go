package store

import "errors"

// ErrNotFound is returned when a lookup by ID finds nothing.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write would violate a uniqueness or
// ordering invariant (e.g. a duplicate non-terminal job for (run, phase)).
var ErrConflict = errors.New("store: conflict")
