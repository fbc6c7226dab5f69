package storage

import "errors"

// Sentinel errors shared by every store implementation. Callers match
// them with errors.Is; implementations wrap driver errors into these.
var (
	// ErrNotFound reports that no record matches the requested key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey reports an insert whose key already exists.
	// Evaluation records are write-once and never updated in place.
	ErrDuplicateKey = errors.New("duplicate key: records are write-once")

	// ErrInvalidInput reports a record that failed validation before
	// reaching the database.
	ErrInvalidInput = errors.New("invalid input")
)
