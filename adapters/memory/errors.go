package memory

import "errors"

// Sentinel errors for the memory adapters.
var (
	// ErrStoreClosed is returned when an operation is attempted on a closed store.
	ErrStoreClosed = errors.New("reservo/memory: store is closed")

	// ErrEmptyKey is returned when an empty aggregate key is provided.
	ErrEmptyKey = errors.New("reservo/memory: aggregate key is required")
)
