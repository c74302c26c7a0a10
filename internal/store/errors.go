package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports an unknown policy, template, or network policy id.
	ErrNotFound = errors.New("not found")

	// ErrStorage reports that the durable backend failed. Reads fail closed
	// with this error so callers can never mistake "store down" for "no
	// policy exists".
	ErrStorage = errors.New("storage unavailable")
)

// storageErr wraps a backend failure so it matches ErrStorage.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}
