// Package docstore provides single-document access to keyed collections.
//
// A Collection never spans more than one document per call: there is no batch
// write and no multi-document transaction. Callers that need to keep two
// documents consistent must order their writes and compensate on failure.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUnavailable wraps every backend failure that is not a missing document.
	ErrUnavailable = errors.New("document store unavailable")
)

// Fields is a partial document for Update, keyed by stored field name.
type Fields map[string]any

// Collection is a keyed set of documents of type T.
type Collection[T any] interface {
	// Get returns the document stored under key.
	Get(ctx context.Context, key string) (*T, error)
	// Set creates or replaces the document under its own key.
	Set(ctx context.Context, doc *T) error
	// Update overwrites the given fields of an existing document.
	Update(ctx context.Context, key string, fields Fields) error
	// Delete removes the document stored under key.
	Delete(ctx context.Context, key string) error
	// List returns every document of the collection ordered by key.
	List(ctx context.Context) ([]T, error)
	// Mutate atomically reads, modifies and writes back one document.
	// An error returned by fn aborts the write and is returned unchanged.
	// fn must not change the document's key.
	Mutate(ctx context.Context, key string, fn func(doc *T) error) error
}

// KeyFunc extracts the document key from a document.
type KeyFunc[T any] func(doc *T) string

var errKeyChanged = errors.New("mutation changed the document key")
