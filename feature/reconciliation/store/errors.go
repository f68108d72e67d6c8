package store

import "errors"

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyResolved is returned when resolving a discrepancy that
	// was already resolved, by system or manual action alike.
	ErrAlreadyResolved = errors.New("discrepancy already resolved")
)
