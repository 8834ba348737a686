// Package gateway orchestrates the two user-facing flows: identifying a
// visitor from an uploaded image and enrolling a new employee.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/archive"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/naming"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/recognition"
	"github.com/your-org/facegate/internal/staging"
)

// UnknownName is shown for both name fields when no identity is resolved.
const UnknownName = "Unknown"

var (
	// ErrBadRequest means the submission has no file or no usable filename.
	ErrBadRequest = errors.New("file not found")
	// ErrInvalidNamingConvention is returned by Enroll for filenames that are
	// not firstname_lastname.ext.
	ErrInvalidNamingConvention = naming.ErrInvalidNamingConvention
	// ErrDirectoryUnavailable means a matched face could not be looked up.
	ErrDirectoryUnavailable = errors.New("identity directory unavailable")
	// ErrEnrollmentNotStored means the image was not archived or not handed
	// to the indexer; nothing was enrolled.
	ErrEnrollmentNotStored = errors.New("enrollment could not be stored")
)

// Publisher hands archived enrollments to the indexer.
type Publisher interface {
	PublishEnrollment(ctx context.Context, evt models.EnrollmentEvent) error
}

// Submission is one uploaded file.
type Submission struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Identification is the outcome of Identify. FirstName and LastName are both
// UnknownName unless a directory record was found.
type Identification struct {
	Filename  string
	Match     *models.FaceMatch
	FirstName string
	LastName  string
	Known     bool
	Archived  bool
}

// EnrollmentReceipt confirms that an enrollment was archived and handed off.
// Indexing happens later; the person is not recognisable until it does.
type EnrollmentReceipt struct {
	EventID        uuid.UUID
	Filename       string
	Bucket         string
	Key            string
	Enrollment     models.Enrollment
	IdempotencyKey string
}

type Options struct {
	CollectionID string
	Threshold    float64
	// DegradeOnDirectoryError reports an unreachable directory as an
	// unknown visitor instead of failing Identify.
	DegradeOnDirectoryError bool
}

type Service struct {
	matcher   recognition.Matcher
	directory directory.Directory
	archive   archive.Archive
	publisher Publisher
	staging   *staging.Area
	opts      Options
}

func NewService(matcher recognition.Matcher, dir directory.Directory, arch archive.Archive, pub Publisher, area *staging.Area, opts Options) *Service {
	return &Service{
		matcher:   matcher,
		directory: dir,
		archive:   arch,
		publisher: pub,
		staging:   area,
		opts:      opts,
	}
}

// Identify archives the image in the visitor archive, searches the
// collection for the closest face and resolves it to a name.
// The visitor archive is best effort; a matcher failure is reported as
// "no match". A directory that cannot be reached fails the call unless
// DegradeOnDirectoryError is set.
func (s *Service) Identify(ctx context.Context, sub Submission) (*Identification, error) {
	if err := validate(sub); err != nil {
		observability.Uploads.WithLabelValues("identify", "bad_request").Inc()
		return nil, err
	}

	key := objectKey(sub.Filename)
	if key == "" {
		observability.Uploads.WithLabelValues("identify", "bad_request").Inc()
		return nil, ErrBadRequest
	}
	staged, err := s.staging.Stage(key, sub.Data)
	if err != nil {
		observability.Uploads.WithLabelValues("identify", "error").Inc()
		return nil, err
	}
	defer s.release(staged)

	image, err := staged.Read()
	if err != nil {
		observability.Uploads.WithLabelValues("identify", "error").Inc()
		return nil, err
	}

	result := &Identification{Filename: key, FirstName: UnknownName, LastName: UnknownName}

	if err := s.archive.Store(ctx, archive.VisitorArchive, key, image, archive.Object{ContentType: sub.ContentType}); err != nil {
		observability.DropError("gateway", "visitor_archive", err, "key", key)
	} else {
		result.Archived = true
	}

	matches, err := s.matcher.Match(ctx, image, s.opts.CollectionID, s.opts.Threshold)
	if err != nil {
		observability.DropError("gateway", "match", err, "key", key)
		matches = nil
	}
	if len(matches) == 0 {
		observability.Identifications.WithLabelValues("no_match").Inc()
		observability.Uploads.WithLabelValues("identify", "ok").Inc()
		return result, nil
	}

	match := matches[0]
	result.Match = &match

	identity, err := s.directory.Lookup(ctx, match.FaceID)
	switch {
	case err == nil:
		result.FirstName = identity.FirstName
		result.LastName = identity.LastName
		result.Known = true
		observability.Identifications.WithLabelValues("matched").Inc()
	case errors.Is(err, directory.ErrNotFound):
		slog.Warn("matched face has no directory record", "face_id", match.FaceID, "key", key)
		observability.Identifications.WithLabelValues("unknown").Inc()
	case s.opts.DegradeOnDirectoryError:
		observability.DropError("gateway", "directory", err, "face_id", match.FaceID)
		observability.Identifications.WithLabelValues("unknown").Inc()
	default:
		observability.Uploads.WithLabelValues("identify", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	observability.Uploads.WithLabelValues("identify", "ok").Inc()
	return result, nil
}

// Enroll validates the filename convention, archives the image in the
// enrollment archive and publishes an EnrollmentEvent for the indexer. It
// returns once the event is published, before the face is indexed.
func (s *Service) Enroll(ctx context.Context, sub Submission) (*EnrollmentReceipt, error) {
	if err := validate(sub); err != nil {
		observability.Uploads.WithLabelValues("enroll", "bad_request").Inc()
		return nil, err
	}

	enrollment, err := naming.ParseEnrollmentFilename(sub.Filename)
	if err != nil {
		observability.Uploads.WithLabelValues("enroll", "invalid_name").Inc()
		return nil, err
	}

	key := sub.Filename
	staged, err := s.staging.Stage(key, sub.Data)
	if err != nil {
		observability.Uploads.WithLabelValues("enroll", "error").Inc()
		return nil, err
	}
	defer s.release(staged)

	image, err := staged.Read()
	if err != nil {
		observability.Uploads.WithLabelValues("enroll", "error").Inc()
		return nil, err
	}

	hash := naming.ContentHash(image)
	obj := archive.Object{
		ContentType: sub.ContentType,
		Metadata: map[string]string{
			"first-name":     enrollment.FirstName,
			"last-name":      enrollment.LastName,
			"content-sha256": hash,
		},
	}
	if err := s.archive.Store(ctx, archive.EnrollmentArchive, key, image, obj); err != nil {
		observability.Uploads.WithLabelValues("enroll", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrEnrollmentNotStored, err)
	}

	evt := models.EnrollmentEvent{
		ID:             uuid.New(),
		Bucket:         s.archive.BucketName(archive.EnrollmentArchive),
		Key:            key,
		FirstName:      enrollment.FirstName,
		LastName:       enrollment.LastName,
		ContentSHA256:  hash,
		IdempotencyKey: naming.IdempotencyKey(key, hash),
		ArchivedAt:     time.Now().UTC(),
	}
	if err := s.publisher.PublishEnrollment(ctx, evt); err != nil {
		observability.Uploads.WithLabelValues("enroll", "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrEnrollmentNotStored, err)
	}

	slog.Info("enrollment accepted", "key", key, "event_id", evt.ID,
		"first_name", enrollment.FirstName, "last_name", enrollment.LastName)
	observability.Uploads.WithLabelValues("enroll", "ok").Inc()

	return &EnrollmentReceipt{
		EventID:        evt.ID,
		Filename:       sub.Filename,
		Bucket:         evt.Bucket,
		Key:            key,
		Enrollment:     enrollment,
		IdempotencyKey: evt.IdempotencyKey,
	}, nil
}

func (s *Service) release(f *staging.File) {
	if err := f.Release(); err != nil {
		observability.DropError("gateway", "staging", err, "path", f.Path)
	}
}

func validate(sub Submission) error {
	if sub.Filename == "" || sub.Data == nil {
		return ErrBadRequest
	}
	return nil
}

// objectKey strips any client-supplied directories from an upload name.
func objectKey(filename string) string {
	base := path.Base(path.Clean("/" + strings.ReplaceAll(filename, `\`, "/")))
	if base == "/" || base == "." {
		return ""
	}
	return base
}
