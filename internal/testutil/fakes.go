// Package testutil provides in-memory fakes of the gateway's external
// collaborators.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/your-org/facegate/internal/archive"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/recognition"
)

// FakeMatcher answers Match from a table of image bytes to face ids and
// hands out sequential face ids on Index.
type FakeMatcher struct {
	mu sync.Mutex

	Faces    map[string]models.FaceMatch
	MatchErr error
	IndexErr error
	// IndexErrPermanent marks IndexErr as caused by the image.
	IndexErrPermanent bool
	MatchCalls        int
	Indexed           []models.ImageRef

	next int
}

func NewFakeMatcher() *FakeMatcher {
	return &FakeMatcher{Faces: make(map[string]models.FaceMatch)}
}

func (m *FakeMatcher) Match(_ context.Context, image []byte, _ string, threshold float64) ([]models.FaceMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MatchCalls++
	if m.MatchErr != nil {
		return nil, &recognition.MatchError{Op: "search", Err: m.MatchErr}
	}
	match, ok := m.Faces[string(image)]
	if !ok || match.Confidence < threshold {
		return nil, nil
	}
	return []models.FaceMatch{match}, nil
}

func (m *FakeMatcher) Index(_ context.Context, img models.ImageRef, _ string) (*models.IndexedFace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IndexErr != nil {
		return nil, &recognition.MatchError{Op: "index", Err: m.IndexErr, Permanent: m.IndexErrPermanent}
	}
	m.next++
	m.Indexed = append(m.Indexed, img)
	return &models.IndexedFace{
		FaceID:          fmt.Sprintf("F%d", m.next),
		ExternalImageID: recognition.ExternalImageID(img.Key),
		Confidence:      99.9,
	}, nil
}

func (m *FakeMatcher) EnsureCollection(context.Context, string) error { return nil }

func (m *FakeMatcher) Ping(context.Context, string) error { return nil }

// IndexCount returns how many faces were indexed.
func (m *FakeMatcher) IndexCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Indexed)
}

// FakePublisher records everything published to the queue.
type FakePublisher struct {
	mu sync.Mutex

	Err           error
	DeadLetterErr error // fails PublishDeadLetter only
	Enrollments   []models.EnrollmentEvent
	DeadLetters   []models.DeadLetter
	Statuses      []models.IndexingStatus
}

func (p *FakePublisher) PublishEnrollment(_ context.Context, evt models.EnrollmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Enrollments = append(p.Enrollments, evt)
	return nil
}

func (p *FakePublisher) PublishDeadLetter(_ context.Context, dl models.DeadLetter) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if p.DeadLetterErr != nil {
		return p.DeadLetterErr
	}
	p.DeadLetters = append(p.DeadLetters, dl)
	return nil
}

func (p *FakePublisher) PublishStatus(_ context.Context, status models.IndexingStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Statuses = append(p.Statuses, status)
	return nil
}

// LastStatus returns the most recent status, or the zero value.
func (p *FakePublisher) LastStatus() models.IndexingStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Statuses) == 0 {
		return models.IndexingStatus{}
	}
	return p.Statuses[len(p.Statuses)-1]
}

// FailingArchive wraps an Archive and fails every Store.
type FailingArchive struct {
	archive.Archive
	Err error
}

func (a *FailingArchive) Store(_ context.Context, bucket archive.Bucket, key string, _ []byte, _ archive.Object) error {
	return &archive.BackendError{Op: "put", Bucket: string(bucket), Key: key, Err: a.Err}
}

// UnreachableDirectory fails every call with a BackendError.
type UnreachableDirectory struct {
	Err error
}

func (d *UnreachableDirectory) Lookup(context.Context, string) (*models.Identity, error) {
	return nil, &directory.BackendError{Op: "lookup", Err: d.Err}
}

func (d *UnreachableDirectory) LookupSource(context.Context, string) (*models.Identity, error) {
	return nil, &directory.BackendError{Op: "lookup_source", Err: d.Err}
}

func (d *UnreachableDirectory) Register(context.Context, models.Identity) error {
	return &directory.BackendError{Op: "register", Err: d.Err}
}

func (d *UnreachableDirectory) Ping(context.Context) error {
	return &directory.BackendError{Op: "ping", Err: d.Err}
}
