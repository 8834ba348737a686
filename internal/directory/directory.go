// Package directory stores identity records keyed by face identifier.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/facegate/internal/models"
)

var (
	// ErrNotFound means the directory answered and holds no record for the key.
	ErrNotFound = errors.New("identity not found")
	// ErrAlreadyExists means the face id or the source image is already registered.
	ErrAlreadyExists = errors.New("identity already exists")
)

// Directory maps face identifiers to people. The indexer is its only writer.
type Directory interface {
	// Lookup returns ErrNotFound when no record exists and a *BackendError
	// when the store cannot be reached.
	Lookup(ctx context.Context, faceID string) (*models.Identity, error)
	// LookupSource finds the record registered for a source image key.
	LookupSource(ctx context.Context, sourceKey string) (*models.Identity, error)
	// Register stores a new record. Registering a face id or a non-empty
	// source key twice returns ErrAlreadyExists.
	Register(ctx context.Context, identity models.Identity) error
	Ping(ctx context.Context) error
}

// BackendError reports a directory that could not answer.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("directory %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func backendErr(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}
