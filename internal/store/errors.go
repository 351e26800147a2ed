package store

import "errors"

// Sentinel error kinds. Callers use errors.Is against these to branch on
// failure category without parsing messages.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrStoreFailure      = errors.New("store failure")
)
