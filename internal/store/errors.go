package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("duplicate record")

// ErrAttemptsExhausted is returned when a passcode has used up its guesses.
var ErrAttemptsExhausted = errors.New("attempts exhausted")
