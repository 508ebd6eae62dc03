// Package storage provides object storage abstractions for snapshot and
// transition record payloads.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrWriteFailed    = errors.New("write failed")
	ErrReadFailed     = errors.New("read failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts object storage operations over opaque record
// payloads. Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put writes data at objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads the object at objectPath.
	// Returns ErrObjectNotFound if no object exists there.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Exists checks if an object exists at objectPath.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Delete removes the object at objectPath.
	// Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// List returns all object paths under the given prefix, sorted.
	// Used by verification to detect orphaned record payloads.
	List(ctx context.Context, prefix string) ([]string, error)
}
