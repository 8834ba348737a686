package indexer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/naming"
)

// storageNotification is the S3 event notification shape, which MinIO
// also emits for bucket notifications.
type storageNotification struct {
	Records []struct {
		EventName string    `json:"eventName"`
		EventTime time.Time `json:"eventTime"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key          string            `json:"key"`
				ETag         string            `json:"eTag"`
				UserMetadata map[string]string `json:"userMetadata"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseStorageNotification turns an object-created notification into
// enrollment events, one per record. Object keys arrive URL-encoded. Names
// are left empty; the indexer derives them from the key.
//
// Objects stored by the gateway carry their content hash in user metadata
// (MinIO includes it in the notification). That hash keys the event the
// same way as the gateway's own event, so the pair dedupes. Without it the
// ETag stands in.
func ParseStorageNotification(data []byte) ([]models.EnrollmentEvent, error) {
	var n storageNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode storage notification: %w", err)
	}
	if len(n.Records) == 0 {
		return nil, fmt.Errorf("storage notification has no records")
	}

	events := make([]models.EnrollmentEvent, 0, len(n.Records))
	for _, r := range n.Records {
		if r.EventName != "" && !strings.Contains(r.EventName, "ObjectCreated") {
			continue
		}
		if r.S3.Bucket.Name == "" || r.S3.Object.Key == "" {
			return nil, fmt.Errorf("storage notification record without bucket or key")
		}
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("decode object key %q: %w", r.S3.Object.Key, err)
		}

		at := r.EventTime
		if at.IsZero() {
			at = time.Now().UTC()
		}
		evt := models.EnrollmentEvent{
			ID:            uuid.New(),
			Bucket:        r.S3.Bucket.Name,
			Key:           key,
			ContentSHA256: contentHash(r.S3.Object.UserMetadata),
			ArchivedAt:    at,
		}
		if evt.ContentSHA256 != "" {
			evt.IdempotencyKey = naming.IdempotencyKey(key, evt.ContentSHA256)
		} else {
			evt.IdempotencyKey = naming.IdempotencyKey(key, strings.Trim(r.S3.Object.ETag, `"`))
		}
		events = append(events, evt)
	}
	return events, nil
}

// contentHash finds the gateway's content-sha256 entry. Servers report user
// metadata as X-Amz-Meta-Content-Sha256 or with varying case.
func contentHash(meta map[string]string) string {
	for k, v := range meta {
		name := strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if name == "content-sha256" {
			return v
		}
	}
	return ""
}
