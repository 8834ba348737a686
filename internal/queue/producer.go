package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
)

const (
	EnrollmentsStreamName = "ENROLLMENTS"
	EnrollmentsSubject    = "enrollments.>"
	// EnrollmentCreatedSubject carries gateway enrollment events.
	EnrollmentCreatedSubject = "enrollments.created"
	// NotificationSubject carries raw S3/MinIO bucket notifications.
	NotificationSubject = "enrollments.notifications"

	DeadLetterStreamName = "DEADLETTER"
	DeadLetterSubject    = "deadletter.enrollments"

	StatusStreamName = "INDEXING"
	StatusSubject    = "indexing.status"

	// DuplicateWindow is how long JetStream remembers message ids.
	DuplicateWindow = 10 * time.Minute
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL, "facegate-producer")
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        EnrollmentsStreamName,
			Subjects:    []string{EnrollmentsSubject},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  DuplicateWindow,
			Description: "Archived enrollment images awaiting indexing",
		},
		{
			Name:        DeadLetterStreamName,
			Subjects:    []string{DeadLetterSubject},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      30 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Description: "Enrollment events the indexer gave up on",
		},
		{
			Name:        StatusStreamName,
			Subjects:    []string{StatusSubject},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Description: "Indexing outcomes for enrollment uploads",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishEnrollment hands an archived enrollment to the indexer. The
// idempotency key doubles as the JetStream message id, so re-publishing the
// same image inside DuplicateWindow is dropped by the server.
func (p *Producer) PublishEnrollment(ctx context.Context, evt models.EnrollmentEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal enrollment event: %w", err)
	}

	ack, err := p.js.Publish(ctx, EnrollmentCreatedSubject, payload, jetstream.WithMsgID(evt.IdempotencyKey))
	if err != nil {
		return fmt.Errorf("publish enrollment: %w", err)
	}
	if ack.Duplicate {
		slog.Info("enrollment event deduplicated by broker", "key", evt.Key, "idempotency_key", evt.IdempotencyKey)
	}
	return nil
}

// PublishDeadLetter parks an event the indexer could not process.
func (p *Producer) PublishDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	payload, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if _, err := p.js.Publish(ctx, DeadLetterSubject, payload); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

// PublishStatus reports an indexing outcome back to the gateway.
func (p *Producer) PublishStatus(ctx context.Context, status models.IndexingStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal indexing status: %w", err)
	}
	if _, err := p.js.Publish(ctx, StatusSubject, payload); err != nil {
		return fmt.Errorf("publish indexing status: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the ENROLLMENTS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, EnrollmentsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
