package storage

import "errors"

// Storage errors
var (
	ErrNotFound = errors.New("entry not found")
	ErrInvalid  = errors.New("invalid entry")
)
