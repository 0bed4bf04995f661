package index

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when an index build is attempted on zero vectors.
	ErrEmptyInput = errors.New("cannot build index from empty input")

	// ErrIndexNotBuilt is returned when an index is queried before its first build.
	ErrIndexNotBuilt = errors.New("index not built")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrUnknownIdentity is returned when an identity is outside 0..Count-1.
type ErrUnknownIdentity struct {
	ID    uint32
	Count int
}

func (e *ErrUnknownIdentity) Error() string {
	return fmt.Sprintf("unknown identity %d (count %d)", e.ID, e.Count)
}

// ErrCapacityExceeded is returned when an approximate index insertion would
// exceed the reserved element budget. Rebuild with a larger reservation.
type ErrCapacityExceeded struct {
	Capacity int
	Required int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: reserved %d, required %d", e.Capacity, e.Required)
}

// ErrCorruptPersistedState is returned when a persisted artifact fails
// validation on load (bad magic, version, checksum, parameters or truncation).
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCorruptPersistedState struct {
	Artifact string
	Reason   string
	cause    error
}

// NewCorruptError returns an ErrCorruptPersistedState for artifact.
func NewCorruptError(artifact, reason string, cause error) *ErrCorruptPersistedState {
	return &ErrCorruptPersistedState{Artifact: artifact, Reason: reason, cause: cause}
}

func (e *ErrCorruptPersistedState) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("corrupt persisted %s: %s: %v", e.Artifact, e.Reason, e.cause)
	}
	return fmt.Sprintf("corrupt persisted %s: %s", e.Artifact, e.Reason)
}

func (e *ErrCorruptPersistedState) Unwrap() error { return e.cause }

// IsCorrupt reports whether err carries an ErrCorruptPersistedState.
func IsCorrupt(err error) bool {
	var c *ErrCorruptPersistedState
	return errors.As(err, &c)
}
