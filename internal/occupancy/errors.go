package occupancy

import (
	"errors"
	"fmt"

	"slackspot-backend/internal/docstore"
	"slackspot-backend/internal/store"
)

// Every failed Result carries an Err wrapping exactly one of these.
var (
	// ErrNotFound means the referenced user or spot record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvariantViolation means the request contradicts the recorded occupancy state.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrPartialFailure means a sequence failed after one of its writes had landed.
	ErrPartialFailure = errors.New("partial failure")
	// ErrStoreUnavailable means the document store could not serve a call.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidInput means the arguments were rejected before touching the store.
	ErrInvalidInput = errors.New("invalid input")
)

// classify wraps a repository error with the matching sentinel.
func classify(err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrNotOccupying):
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}
