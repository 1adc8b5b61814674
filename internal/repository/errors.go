package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrVersionConflict indicates a conditional update lost to a concurrent
// writer. Callers should re-fetch and retry with the current version.
var ErrVersionConflict = errors.New("repository: version conflict")

// ErrInvalidArgument indicates the storage layer rejected malformed input.
var ErrInvalidArgument = errors.New("repository: invalid argument")
