package dto

import "github.com/google/uuid"

// IdentifyResponse is returned by POST /upload and POST /v1/identify.
// FirstName and LastName are both "Unknown" when no identity was resolved.
type IdentifyResponse struct {
	Filename   string  `json:"filename"`
	Matched    bool    `json:"matched"`
	Known      bool    `json:"known"`
	FaceID     string  `json:"face_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Archived   bool    `json:"archived"`
}

// EnrollResponse is returned by POST /add_employee and POST /v1/enrollments.
// Status is "pending" until the indexer reports on the ws feed.
type EnrollResponse struct {
	Message        string    `json:"message"`
	EventID        uuid.UUID `json:"event_id"`
	Filename       string    `json:"filename"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Bucket         string    `json:"bucket"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         string    `json:"status"`
}

type IdentityResponse struct {
	FaceID    string `json:"face_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	SourceKey string `json:"source_key,omitempty"`
	CreatedAt string `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// WSEvent is a WebSocket message reporting an indexing outcome.
type WSEvent struct {
	Type   string `json:"type"` // enrollment.indexed, enrollment.duplicate, enrollment.failed, enrollment.dead_lettered
	Key    string `json:"key"`
	FaceID string `json:"face_id,omitempty"`
	Reason string `json:"reason,omitempty"`
	At     string `json:"at"`
}
