package indexer

import "testing"

func TestParseStorageNotification(t *testing.T) {
	payload := []byte(`{"Records":[
		{"eventName":"ObjectCreated:Put","eventTime":"2024-05-01T10:00:00Z",
		 "s3":{"bucket":{"name":"employee-archive"},"object":{"key":"anne+marie_van%20dyke.jpg","eTag":"\"d41d8\""}}},
		{"eventName":"ObjectRemoved:Delete",
		 "s3":{"bucket":{"name":"employee-archive"},"object":{"key":"old_one.jpg"}}}
	]}`)

	events, err := ParseStorageNotification(payload)
	if err != nil {
		t.Fatalf("ParseStorageNotification() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	evt := events[0]
	if evt.Bucket != "employee-archive" {
		t.Errorf("Bucket = %q", evt.Bucket)
	}
	if evt.Key != "anne marie_van dyke.jpg" {
		t.Errorf("Key = %q, want decoded key", evt.Key)
	}
	if evt.IdempotencyKey != "anne marie_van dyke.jpg:d41d8" {
		t.Errorf("IdempotencyKey = %q", evt.IdempotencyKey)
	}
	if evt.ArchivedAt.Year() != 2024 {
		t.Errorf("ArchivedAt = %v", evt.ArchivedAt)
	}
}

func TestParseStorageNotification_ContentHashFromMetadata(t *testing.T) {
	payload := []byte(`{"Records":[{"eventName":"s3:ObjectCreated:Put",
		"s3":{"bucket":{"name":"employees"},"object":{"key":"jane_doe.jpg","eTag":"\"e1\"",
		"userMetadata":{"X-Amz-Meta-Content-Sha256":"9f86d0","content-type":"image/jpeg"}}}}]}`)

	events, err := ParseStorageNotification(payload)
	if err != nil {
		t.Fatalf("ParseStorageNotification() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].ContentSHA256 != "9f86d0" {
		t.Errorf("ContentSHA256 = %q", events[0].ContentSHA256)
	}
	if events[0].IdempotencyKey != "jane_doe.jpg:9f86d0" {
		t.Errorf("IdempotencyKey = %q, want the gateway's key", events[0].IdempotencyKey)
	}
}

func TestParseStorageNotification_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `nope`},
		{"no records", `{"Records":[]}`},
		{"missing key", `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{}}}]}`},
		{"bad escape", `{"Records":[{"s3":{"bucket":{"name":"b"},"object":{"key":"a%zz"}}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStorageNotification([]byte(tt.payload)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
