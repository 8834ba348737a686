// Package indexer turns archived enrollment images into searchable faces
// and directory records.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/your-org/facegate/internal/archive"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/naming"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/recognition"
)

// errPermanent marks failures that no redelivery can fix.
var errPermanent = errors.New("permanent failure")

// Publisher reports outcomes and parks events the indexer gives up on.
type Publisher interface {
	PublishDeadLetter(ctx context.Context, dl models.DeadLetter) error
	PublishStatus(ctx context.Context, status models.IndexingStatus) error
}

type Options struct {
	CollectionID string
	// FetchImages reads the image from the archive and sends the bytes to
	// the matcher. Needed when the matcher cannot read the archive itself.
	FetchImages bool
	// Notifications enables handling raw storage notifications.
	Notifications bool
}

type Indexer struct {
	matcher   recognition.Matcher
	directory directory.Directory
	archive   archive.Archive
	publisher Publisher
	opts      Options
}

func New(matcher recognition.Matcher, dir directory.Directory, arch archive.Archive, pub Publisher, opts Options) *Indexer {
	return &Indexer{
		matcher:   matcher,
		directory: dir,
		archive:   arch,
		publisher: pub,
		opts:      opts,
	}
}

// HandleDelivery processes one queue message. A returned error asks for
// redelivery; once maxDeliver attempts are used up, or the failure is
// permanent, the message is dead-lettered and acknowledged instead.
func (ix *Indexer) HandleDelivery(ctx context.Context, d queue.Delivery, maxDeliver int) error {
	var events []models.EnrollmentEvent

	switch d.Subject {
	case queue.EnrollmentCreatedSubject:
		var evt models.EnrollmentEvent
		if err := json.Unmarshal(d.Data, &evt); err != nil {
			return ix.deadLetter(ctx, d, "", fmt.Errorf("decode enrollment event: %w", err))
		}
		events = append(events, evt)
	case queue.NotificationSubject:
		if !ix.opts.Notifications {
			slog.Debug("storage notifications disabled, skipping", "subject", d.Subject)
			return nil
		}
		parsed, err := ParseStorageNotification(d.Data)
		if err != nil {
			return ix.deadLetter(ctx, d, "", err)
		}
		events = parsed
	default:
		return ix.deadLetter(ctx, d, "", fmt.Errorf("unexpected subject %q", d.Subject))
	}

	for _, evt := range events {
		err := ix.Handle(ctx, evt)
		if err == nil {
			continue
		}
		if errors.Is(err, errPermanent) || d.Attempt >= maxDeliver {
			if dlErr := ix.deadLetter(ctx, d, evt.Key, err); dlErr != nil {
				return dlErr
			}
			continue
		}
		ix.report(ctx, models.IndexingStatus{Key: evt.Key, State: models.IndexingFailed, Reason: err.Error()})
		return err
	}
	return nil
}

// Handle indexes one archived enrollment image. Handling the same image
// twice creates no second face record and no second directory entry.
func (ix *Indexer) Handle(ctx context.Context, evt models.EnrollmentEvent) error {
	enrollment, err := enrollmentOf(evt)
	if err != nil {
		return fmt.Errorf("%w: %w", errPermanent, err)
	}

	sourceKey := evt.IdempotencyKey
	if sourceKey == "" {
		sourceKey = naming.IdempotencyKey(evt.Key, evt.ContentSHA256)
	}
	log := slog.With("bucket", evt.Bucket, "key", evt.Key, "source_key", sourceKey)

	existing, err := ix.directory.LookupSource(ctx, sourceKey)
	switch {
	case err == nil:
		log.Info("enrollment already indexed", "face_id", existing.FaceID)
		ix.report(ctx, models.IndexingStatus{Key: evt.Key, State: models.IndexingDuplicate, FaceID: existing.FaceID})
		return nil
	case errors.Is(err, directory.ErrNotFound):
	default:
		return err
	}

	img := models.ImageRef{Bucket: evt.Bucket, Key: evt.Key}
	if ix.opts.FetchImages {
		data, err := ix.archive.Fetch(ctx, evt.Bucket, evt.Key)
		if err != nil {
			return err
		}
		img.Bytes = data
	}

	face, err := ix.matcher.Index(ctx, img, ix.opts.CollectionID)
	if err != nil {
		var me *recognition.MatchError
		if errors.As(err, &me) && me.Permanent {
			return fmt.Errorf("%w: %w", errPermanent, err)
		}
		return err
	}

	err = ix.directory.Register(ctx, models.Identity{
		FaceID:    face.FaceID,
		FirstName: enrollment.FirstName,
		LastName:  enrollment.LastName,
		SourceKey: sourceKey,
	})
	if errors.Is(err, directory.ErrAlreadyExists) {
		// A concurrent delivery won the race; the face it indexed is the one on record.
		log.Warn("enrollment registered concurrently", "face_id", face.FaceID)
		ix.report(ctx, models.IndexingStatus{Key: evt.Key, State: models.IndexingDuplicate, FaceID: face.FaceID})
		return nil
	}
	if err != nil {
		return err
	}

	log.Info("enrollment indexed", "face_id", face.FaceID,
		"first_name", enrollment.FirstName, "last_name", enrollment.LastName)
	ix.report(ctx, models.IndexingStatus{Key: evt.Key, State: models.IndexingIndexed, FaceID: face.FaceID})
	return nil
}

// enrollmentOf returns the names carried by the event, or parses them from
// the object key for events built from storage notifications.
func enrollmentOf(evt models.EnrollmentEvent) (models.Enrollment, error) {
	if evt.Bucket == "" || evt.Key == "" {
		return models.Enrollment{}, fmt.Errorf("event without bucket or key")
	}
	if evt.FirstName != "" || evt.LastName != "" {
		if evt.FirstName == "" || evt.LastName == "" {
			return models.Enrollment{}, fmt.Errorf("event for %q has a partial name", evt.Key)
		}
		return models.Enrollment{FirstName: evt.FirstName, LastName: evt.LastName}, nil
	}
	return naming.ParseEnrollmentFilename(path.Base(evt.Key))
}

func (ix *Indexer) deadLetter(ctx context.Context, d queue.Delivery, key string, cause error) error {
	dl := models.DeadLetter{
		Reason:   cause.Error(),
		Subject:  d.Subject,
		Attempts: d.Attempt,
		Payload:  d.Data,
		FailedAt: time.Now().UTC(),
	}
	if err := ix.publisher.PublishDeadLetter(ctx, dl); err != nil {
		// Keep the message on the stream rather than lose it.
		return fmt.Errorf("dead-letter %q: %w", key, err)
	}
	slog.Error("enrollment dead-lettered", "key", key, "subject", d.Subject, "attempts", d.Attempt, "reason", cause)
	ix.report(ctx, models.IndexingStatus{Key: key, State: models.IndexingDeadLettered, Reason: cause.Error()})
	return nil
}

func (ix *Indexer) report(ctx context.Context, status models.IndexingStatus) {
	status.At = time.Now().UTC()
	observability.EnrollmentsIndexed.WithLabelValues(string(status.State)).Inc()
	if err := ix.publisher.PublishStatus(ctx, status); err != nil {
		observability.DropError("indexer", "status", err, "key", status.Key)
	}
}
