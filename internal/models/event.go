package models

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentEvent is published once an enrollment image has been archived.
// Delivery is at-least-once; IdempotencyKey identifies the source image.
type EnrollmentEvent struct {
	ID             uuid.UUID `json:"id"`
	Bucket         string    `json:"bucket"`
	Key            string    `json:"key"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	ContentSHA256  string    `json:"content_sha256,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	ArchivedAt     time.Time `json:"archived_at"`
}

type IndexingState string

const (
	IndexingIndexed      IndexingState = "indexed"
	IndexingDuplicate    IndexingState = "duplicate"
	IndexingFailed       IndexingState = "failed"
	IndexingDeadLettered IndexingState = "dead_lettered"
)

// IndexingStatus reports what the indexer did with one enrollment event.
type IndexingStatus struct {
	Key    string        `json:"key"`
	State  IndexingState `json:"state"`
	FaceID string        `json:"face_id,omitempty"`
	Reason string        `json:"reason,omitempty"`
	At     time.Time     `json:"at"`
}

// DeadLetter wraps an event payload the indexer gave up on.
type DeadLetter struct {
	Reason   string    `json:"reason"`
	Subject  string    `json:"subject"`
	Attempts int       `json:"attempts"`
	Payload  []byte    `json:"payload"`
	FailedAt time.Time `json:"failed_at"`
}
