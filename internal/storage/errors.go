package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrWriteFailed wraps persistence write failures. Writes are
	// best-effort: the in-memory state that triggered the write is
	// not rolled back.
	ErrWriteFailed = errors.New("persistence write failed")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
