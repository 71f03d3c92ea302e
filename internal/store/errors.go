package store

import (
	"errors"
	"fmt"
)

// Common store errors. Entity-specific errors wrap the generic ones so
// callers can match either level with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidEntity indicates the entity failed validation before
	// insertion.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTaskNotFound indicates the requested task does not exist.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)
)

// IsNotFoundError reports whether err represents a missing entity.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
