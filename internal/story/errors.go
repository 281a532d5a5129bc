package story

import "errors"

var (
	// ErrNotFound indicates that a requested entity does not exist in the store.
	ErrNotFound = errors.New("story: not found")
	// ErrConstraintViolation indicates that a write would break a structural invariant.
	ErrConstraintViolation = errors.New("story: constraint violation")
)
