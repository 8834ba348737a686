package gateway

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/your-org/facegate/internal/archive"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/staging"
	"github.com/your-org/facegate/internal/testutil"
)

type fixture struct {
	svc       *Service
	matcher   *testutil.FakeMatcher
	directory *directory.MemoryDirectory
	archive   *archive.MemoryArchive
	publisher *testutil.FakePublisher
	stageDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stageDir := t.TempDir()
	area, err := staging.NewArea(stageDir)
	if err != nil {
		t.Fatalf("NewArea() error = %v", err)
	}

	f := &fixture{
		matcher:   testutil.NewFakeMatcher(),
		directory: directory.NewMemoryDirectory(),
		archive:   archive.NewMemoryArchive(archive.Buckets{Visitor: "visitors", Enrollment: "employees"}),
		publisher: &testutil.FakePublisher{},
		stageDir:  stageDir,
	}
	f.svc = NewService(f.matcher, f.directory, f.archive, f.publisher, area, Options{
		CollectionID: "employee",
		Threshold:    80,
	})
	return f
}

func (f *fixture) assertStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.stageDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("staging area has %d leftover entries", len(entries))
	}
}

func TestIdentify_Known(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.matcher.Faces["alice-face"] = models.FaceMatch{FaceID: "F1", Confidence: 97.3}
	if err := f.directory.Register(ctx, models.Identity{FaceID: "F1", FirstName: "Alice", LastName: "Smith"}); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Identify(ctx, Submission{Filename: "visitor.jpg", Data: []byte("alice-face")})
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}

	if !got.Known || got.FirstName != "Alice" || got.LastName != "Smith" {
		t.Errorf("Identify() = %+v, want Alice Smith", got)
	}
	if got.Match == nil || got.Match.FaceID != "F1" {
		t.Errorf("Match = %+v, want F1", got.Match)
	}
	if !got.Archived || f.archive.Count(archive.VisitorArchive) != 1 {
		t.Error("visitor image was not archived")
	}
	f.assertStagingEmpty(t)
}

func TestIdentify_Unresolved(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		match bool
	}{
		{
			name:  "no face above threshold",
			setup: func(f *fixture) { f.matcher.Faces["face"] = models.FaceMatch{FaceID: "F1", Confidence: 50} },
		},
		{
			name:  "matcher error",
			setup: func(f *fixture) { f.matcher.MatchErr = errors.New("no faces in image") },
		},
		{
			name:  "face without directory record",
			setup: func(f *fixture) { f.matcher.Faces["face"] = models.FaceMatch{FaceID: "F9", Confidence: 99} },
			match: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			got, err := f.svc.Identify(context.Background(), Submission{Filename: "v.jpg", Data: []byte("face")})
			if err != nil {
				t.Fatalf("Identify() error = %v", err)
			}
			if got.Known {
				t.Error("Known = true, want false")
			}
			if got.FirstName != UnknownName || got.LastName != UnknownName {
				t.Errorf("names = %q %q, want both %q", got.FirstName, got.LastName, UnknownName)
			}
			if (got.Match != nil) != tt.match {
				t.Errorf("Match = %+v, want present=%v", got.Match, tt.match)
			}
		})
	}
}

func TestIdentify_BadRequestCallsNoBackend(t *testing.T) {
	tests := []struct {
		name string
		sub  Submission
	}{
		{"no file", Submission{}},
		{"empty filename", Submission{Data: []byte("x")}},
		{"filename is a directory", Submission{Filename: "../", Data: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Identify(context.Background(), tt.sub)
			if !errors.Is(err, ErrBadRequest) {
				t.Fatalf("Identify() error = %v, want ErrBadRequest", err)
			}
			if f.matcher.MatchCalls != 0 {
				t.Errorf("matcher called %d times", f.matcher.MatchCalls)
			}
			if f.archive.Count(archive.VisitorArchive) != 0 {
				t.Error("archive written on bad request")
			}
		})
	}
}

func TestIdentify_ArchiveFailureDoesNotBlockMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.archive = &testutil.FailingArchive{Archive: f.archive, Err: errors.New("bucket gone")}
	f.matcher.Faces["face"] = models.FaceMatch{FaceID: "F1", Confidence: 90}
	_ = f.directory.Register(ctx, models.Identity{FaceID: "F1", FirstName: "Bob", LastName: "Lee"})

	got, err := f.svc.Identify(ctx, Submission{Filename: "v.jpg", Data: []byte("face")})
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if got.Archived {
		t.Error("Archived = true after archive failure")
	}
	if got.FirstName != "Bob" || got.LastName != "Lee" {
		t.Errorf("names = %q %q, want Bob Lee", got.FirstName, got.LastName)
	}
}

func TestIdentify_DirectoryUnavailable(t *testing.T) {
	f := newFixture(t)
	f.svc.directory = &testutil.UnreachableDirectory{Err: errors.New("connection refused")}
	f.matcher.Faces["face"] = models.FaceMatch{FaceID: "F1", Confidence: 90}
	sub := Submission{Filename: "v.jpg", Data: []byte("face")}

	_, err := f.svc.Identify(context.Background(), sub)
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("Identify() error = %v, want ErrDirectoryUnavailable", err)
	}
	var be *directory.BackendError
	if !errors.As(err, &be) {
		t.Errorf("error %v does not carry the BackendError", err)
	}
	f.assertStagingEmpty(t)

	f.svc.opts.DegradeOnDirectoryError = true
	got, err := f.svc.Identify(context.Background(), sub)
	if err != nil {
		t.Fatalf("Identify() with degrade error = %v", err)
	}
	if got.FirstName != UnknownName || got.LastName != UnknownName {
		t.Errorf("names = %q %q, want Unknown Unknown", got.FirstName, got.LastName)
	}
}

func TestEnroll(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.svc.Enroll(context.Background(), Submission{Filename: "jane_doe.jpg", ContentType: "image/jpeg", Data: []byte("jane")})
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}

	if receipt.Enrollment.FirstName != "jane" || receipt.Enrollment.LastName != "doe" {
		t.Errorf("Enrollment = %+v, want jane doe", receipt.Enrollment)
	}
	if receipt.Bucket != "employees" || receipt.Key != "jane_doe.jpg" {
		t.Errorf("stored at %s/%s", receipt.Bucket, receipt.Key)
	}

	meta, ok := f.archive.Metadata(archive.EnrollmentArchive, "jane_doe.jpg")
	if !ok {
		t.Fatal("enrollment image not archived")
	}
	if meta["first-name"] != "jane" || meta["last-name"] != "doe" {
		t.Errorf("metadata = %v", meta)
	}

	if len(f.publisher.Enrollments) != 1 {
		t.Fatalf("published %d events, want 1", len(f.publisher.Enrollments))
	}
	evt := f.publisher.Enrollments[0]
	if evt.IdempotencyKey != receipt.IdempotencyKey || evt.IdempotencyKey == "jane_doe.jpg" {
		t.Errorf("IdempotencyKey = %q", evt.IdempotencyKey)
	}
	if evt.FirstName != "jane" || evt.LastName != "doe" {
		t.Errorf("event names = %q %q", evt.FirstName, evt.LastName)
	}
	if f.directory.Len() != 0 {
		t.Error("Enroll wrote to the directory")
	}
	f.assertStagingEmpty(t)
}

func TestEnroll_InvalidNameWritesNothing(t *testing.T) {
	for _, name := range []string{"janedoe.jpg", "jane_doe_smith.jpg", "_doe.jpg", "jane_doe"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.svc.Enroll(context.Background(), Submission{Filename: name, Data: []byte("x")})
			if !errors.Is(err, ErrInvalidNamingConvention) {
				t.Fatalf("Enroll(%q) error = %v, want ErrInvalidNamingConvention", name, err)
			}
			if f.archive.Count(archive.EnrollmentArchive) != 0 {
				t.Error("archive written for invalid name")
			}
			if len(f.publisher.Enrollments) != 0 {
				t.Error("event published for invalid name")
			}
		})
	}
}

func TestEnroll_HandOffFailures(t *testing.T) {
	t.Run("archive", func(t *testing.T) {
		f := newFixture(t)
		f.svc.archive = &testutil.FailingArchive{Archive: f.archive, Err: errors.New("denied")}

		_, err := f.svc.Enroll(context.Background(), Submission{Filename: "jane_doe.jpg", Data: []byte("x")})
		if !errors.Is(err, ErrEnrollmentNotStored) {
			t.Fatalf("Enroll() error = %v, want ErrEnrollmentNotStored", err)
		}
		if len(f.publisher.Enrollments) != 0 {
			t.Error("event published although archive failed")
		}
	})

	t.Run("publish", func(t *testing.T) {
		f := newFixture(t)
		f.publisher.Err = errors.New("nats down")

		_, err := f.svc.Enroll(context.Background(), Submission{Filename: "jane_doe.jpg", Data: []byte("x")})
		if !errors.Is(err, ErrEnrollmentNotStored) {
			t.Fatalf("Enroll() error = %v, want ErrEnrollmentNotStored", err)
		}
		f.assertStagingEmpty(t)
	})
}

func TestEnroll_SameImageSameKey(t *testing.T) {
	f := newFixture(t)
	sub := Submission{Filename: "jane_doe.jpg", Data: []byte("jane")}

	first, err := f.svc.Enroll(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Enroll(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if first.IdempotencyKey != second.IdempotencyKey {
		t.Errorf("idempotency keys differ: %q vs %q", first.IdempotencyKey, second.IdempotencyKey)
	}
	if first.EventID == second.EventID {
		t.Error("event ids should be unique per publish")
	}
}
