// Package recognition is the client side of the managed face-matching
// backend: similarity search against a collection and face indexing.
package recognition

import (
	"context"
	"fmt"

	"github.com/your-org/facegate/internal/models"
)

// Matcher searches and indexes faces in a named collection.
type Matcher interface {
	// Match returns at most one face whose similarity is at or above
	// threshold (a percentage). An empty slice means no match.
	Match(ctx context.Context, image []byte, collectionID string, threshold float64) ([]models.FaceMatch, error)
	// Index adds the face found in img to the collection.
	Index(ctx context.Context, img models.ImageRef, collectionID string) (*models.IndexedFace, error)
	EnsureCollection(ctx context.Context, collectionID string) error
	Ping(ctx context.Context, collectionID string) error
}

// MatchError is any failure reported by the matcher backend: transport,
// timeout, no face in the image or a malformed image.
type MatchError struct {
	Op  string
	Err error
	// Permanent is set when retrying the same image cannot succeed.
	Permanent bool
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("matcher %s: %v", e.Op, e.Err)
}

func (e *MatchError) Unwrap() error { return e.Err }
