// Package archive stores uploaded images in the visitor and enrollment
// buckets.
package archive

import (
	"context"
	"fmt"
)

// Bucket selects one of the two logical archives.
type Bucket string

const (
	VisitorArchive    Bucket = "visitor-archive"
	EnrollmentArchive Bucket = "enrollment-archive"
)

// Object carries what is stored next to the bytes.
type Object struct {
	ContentType string
	Metadata    map[string]string
}

// Archive is write-mostly blob storage keyed by filename.
type Archive interface {
	Store(ctx context.Context, bucket Bucket, key string, data []byte, obj Object) error
	// Fetch reads an object back by physical bucket name, as carried in
	// storage events.
	Fetch(ctx context.Context, bucketName, key string) ([]byte, error)
	// BucketName resolves a logical archive to its physical bucket.
	BucketName(bucket Bucket) string
	EnsureBuckets(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Buckets maps logical archives to physical bucket names.
type Buckets struct {
	Visitor    string
	Enrollment string
}

func (b Buckets) name(bucket Bucket) (string, error) {
	switch bucket {
	case VisitorArchive:
		return b.Visitor, nil
	case EnrollmentArchive:
		return b.Enrollment, nil
	default:
		return "", fmt.Errorf("unknown archive %q", bucket)
	}
}

func (b Buckets) all() []string {
	return []string{b.Visitor, b.Enrollment}
}

// BackendError reports a failed call to the object store.
type BackendError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("archive %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
