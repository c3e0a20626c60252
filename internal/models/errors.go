package models

import (
	"errors"
	"fmt"

	"code-collab/internal/ot"
)

// Error taxonomy of the collaboration core. VersionSkew and InvalidOperation
// are recoverable by the client (resync or fix the payload) and never touch
// the change log; Transient means the persistence backend could not be
// reached and the caller may retry.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrRoomFull            = errors.New("room is full")
	ErrShuttingDown        = errors.New("collaboration core is shutting down")

	// Merge-layer rejections surface under the same identities the
	// resolver uses, so errors.Is works across layers.
	ErrVersionSkew      = ot.ErrVersionSkew
	ErrInvalidOperation = ot.ErrInvalidOperation
)

// TransientError wraps a backend I/O failure. The core guarantees the change
// was not partially applied; retrying with the same op ID is safe because
// the change log dedupes on it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError.
func Transient(err error) error {
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a transient backend failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
