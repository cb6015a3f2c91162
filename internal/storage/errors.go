package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when inserting a record whose key already
	// exists. The trade log is append-only: records are never updated in place.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when the input fails validation.
	ErrInvalidInput = errors.New("invalid input")
)
