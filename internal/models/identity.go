package models

import "time"

// Identity is a directory record keyed by the face identifier the matcher
// assigned when the enrollment image was indexed.
type Identity struct {
	FaceID    string    `json:"face_id" db:"face_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	SourceKey string    `json:"source_key,omitempty" db:"source_key"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FaceMatch is the top similarity hit for a submitted image.
type FaceMatch struct {
	FaceID     string  `json:"face_id"`
	Confidence float64 `json:"confidence"`
}

// IndexedFace is the face record created when an image is added to a collection.
type IndexedFace struct {
	FaceID          string  `json:"face_id"`
	ExternalImageID string  `json:"external_image_id,omitempty"`
	Confidence      float64 `json:"confidence"`
}

// Enrollment is the structured metadata carried with an enrollment image.
type Enrollment struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ImageRef points the matcher at an image to index. When Bytes is set the
// image is sent inline, otherwise the matcher reads Bucket/Key itself.
type ImageRef struct {
	Bucket string
	Key    string
	Bytes  []byte
}
