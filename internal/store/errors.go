package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when a create would violate the
// unique email constraint.
var ErrDuplicateEmail = errors.New("email already in use")
