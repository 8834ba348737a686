package archive

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemoryArchive_StoreAndFetch(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArchive(Buckets{Visitor: "visitors", Enrollment: "employees"})

	tests := []struct {
		name   string
		bucket Bucket
		want   string
	}{
		{"visitor", VisitorArchive, "visitors"},
		{"enrollment", EnrollmentArchive, "employees"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.BucketName(tt.bucket); got != tt.want {
				t.Fatalf("BucketName(%q) = %q, want %q", tt.bucket, got, tt.want)
			}

			data := []byte("image-" + tt.name)
			if err := a.Store(ctx, tt.bucket, "face.jpg", data, Object{ContentType: "image/jpeg"}); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			got, err := a.Fetch(ctx, tt.want, "face.jpg")
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("Fetch() = %q, want %q", got, data)
			}
		})
	}

	if a.Count(VisitorArchive) != 1 || a.Count(EnrollmentArchive) != 1 {
		t.Errorf("archives are not kept apart: visitor=%d enrollment=%d",
			a.Count(VisitorArchive), a.Count(EnrollmentArchive))
	}
}

func TestMemoryArchive_Errors(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryArchive(Buckets{Visitor: "visitors", Enrollment: "employees"})

	var be *BackendError
	if err := a.Store(ctx, Bucket("other"), "x.jpg", nil, Object{}); !errors.As(err, &be) {
		t.Errorf("Store() to unknown archive error = %v, want *BackendError", err)
	}
	if _, err := a.Fetch(ctx, "visitors", "missing.jpg"); !errors.As(err, &be) {
		t.Errorf("Fetch() missing object error = %v, want *BackendError", err)
	}
}
