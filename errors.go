package vecrec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecrec/blobstore"
	"github.com/hupe1980/vecrec/featurestore"
	"github.com/hupe1980/vecrec/index"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyInput is returned when an index build is attempted on zero vectors.
	ErrEmptyInput = errors.New("cannot build index from empty input")

	// ErrIndexNotBuilt is returned when an index is queried before its first build.
	ErrIndexNotBuilt = errors.New("index not built")

	// ErrDuplicateKey is returned when an item key is already stored.
	ErrDuplicateKey = errors.New("duplicate item key")

	// ErrNotFound is returned when a persisted artifact does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("db closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrUnknownIdentity indicates an identity that is not in the feature store.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrUnknownIdentity struct {
	ID    uint32
	Count int
	cause error
}

func (e *ErrUnknownIdentity) Error() string {
	return fmt.Sprintf("unknown identity %d (count %d)", e.ID, e.Count)
}

func (e *ErrUnknownIdentity) Unwrap() error { return e.cause }

// ErrCapacityExceeded indicates that the approximate index reservation is
// exhausted. Rebuild to reserve a new budget.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCapacityExceeded struct {
	Capacity int
	Required int
	cause    error
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: reserved %d, required %d", e.Capacity, e.Required)
}

func (e *ErrCapacityExceeded) Unwrap() error { return e.cause }

// ErrCorruptPersistedState indicates a persisted artifact that failed
// validation on load.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrCorruptPersistedState struct {
	Artifact string
	Reason   string
	cause    error
}

func (e *ErrCorruptPersistedState) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return fmt.Sprintf("corrupt persisted %s: %s", e.Artifact, e.Reason)
}

func (e *ErrCorruptPersistedState) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Corruption first: it may wrap a structural error from the decoder.
	var cp *index.ErrCorruptPersistedState
	if errors.As(err, &cp) {
		return &ErrCorruptPersistedState{Artifact: cp.Artifact, Reason: cp.Reason, cause: err}
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var ui *index.ErrUnknownIdentity
	if errors.As(err, &ui) {
		return &ErrUnknownIdentity{ID: ui.ID, Count: ui.Count, cause: err}
	}
	var ce *index.ErrCapacityExceeded
	if errors.As(err, &ce) {
		return &ErrCapacityExceeded{Capacity: ce.Capacity, Required: ce.Required, cause: err}
	}

	switch {
	case errors.Is(err, index.ErrInvalidK):
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	case errors.Is(err, index.ErrEmptyInput):
		return fmt.Errorf("%w: %w", ErrEmptyInput, err)
	case errors.Is(err, index.ErrIndexNotBuilt):
		return fmt.Errorf("%w: %w", ErrIndexNotBuilt, err)
	case errors.Is(err, featurestore.ErrDuplicateKey):
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	case errors.Is(err, blobstore.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}
