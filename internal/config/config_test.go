package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Matcher.CollectionID != "employee" {
		t.Errorf("Matcher.CollectionID = %q, want employee", cfg.Matcher.CollectionID)
	}
	if cfg.Matcher.Threshold != 80 {
		t.Errorf("Matcher.Threshold = %v, want 80", cfg.Matcher.Threshold)
	}
	if cfg.Matcher.Timeout != 10*time.Second {
		t.Errorf("Matcher.Timeout = %v, want 10s", cfg.Matcher.Timeout)
	}
	if cfg.Directory.Backend != "postgres" {
		t.Errorf("Directory.Backend = %q, want postgres", cfg.Directory.Backend)
	}
	if cfg.Archive.VisitorBucket != "visitor-archive" || cfg.Archive.EnrollmentBucket != "enrollment-archive" {
		t.Errorf("archive buckets = %q/%q", cfg.Archive.VisitorBucket, cfg.Archive.EnrollmentBucket)
	}
	if cfg.Indexer.MaxDeliver != 5 {
		t.Errorf("Indexer.MaxDeliver = %d, want 5", cfg.Indexer.MaxDeliver)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FACEGATE_SERVER_PORT", "7070")
	t.Setenv("FACEGATE_MATCH_THRESHOLD", "92.5")
	t.Setenv("FACEGATE_DIRECTORY_BACKEND", "dynamodb")
	t.Setenv("FACEGATE_DYNAMODB_TABLE", "people")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Matcher.Threshold != 92.5 {
		t.Errorf("Matcher.Threshold = %v, want 92.5", cfg.Matcher.Threshold)
	}
	if cfg.Directory.Backend != "dynamodb" {
		t.Errorf("Directory.Backend = %q, want dynamodb", cfg.Directory.Backend)
	}
	if cfg.DynamoDB.Table != "people" {
		t.Errorf("DynamoDB.Table = %q, want people", cfg.DynamoDB.Table)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown directory backend", "directory:\n  backend: redis\n"},
		{"unknown archive backend", "archive:\n  backend: gcs\n"},
		{"in-process directory", "directory:\n  backend: memory\n"},
		{"in-process archive", "archive:\n  backend: memory\n"},
		{"threshold above 100", "matcher:\n  threshold: 120\n"},
		{"same bucket twice", "archive:\n  visitor_bucket: images\n  enrollment_bucket: images\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}
