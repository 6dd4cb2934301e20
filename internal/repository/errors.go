package repository

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or is soft-deleted.
	ErrNotFound = errors.New("record not found")

	// ErrCorrupted is returned when a stored row violates the record schema.
	// Operations hitting it must surface the failure, never continue silently.
	ErrCorrupted = errors.New("local store corrupted")
)
