package style

import (
	"errors"
	"fmt"
)

// ErrInvalidKey is returned for an empty or whitespace-only style key.
var ErrInvalidKey = errors.New("invalid style key")

// StorageError is returned when the persistence medium cannot be read or
// written. Extractable via errors.As(). Supports Unwrap().
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("style store: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// CorruptProfileError is returned when a stored profile document exists but
// cannot be decoded into a valid Profile. Extractable via errors.As().
type CorruptProfileError struct {
	Key string
	Err error
}

func (e *CorruptProfileError) Error() string {
	return fmt.Sprintf("style store: corrupt profile %q: %v", e.Key, e.Err)
}

func (e *CorruptProfileError) Unwrap() error { return e.Err }
