package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/archive"
	"github.com/your-org/facegate/internal/directory"
	"github.com/your-org/facegate/internal/gateway"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/staging"
	"github.com/your-org/facegate/internal/testutil"
	"github.com/your-org/facegate/pkg/dto"
)

const testAPIKey = "test-key"

type testServer struct {
	handler   http.Handler
	matcher   *testutil.FakeMatcher
	directory *directory.MemoryDirectory
	archive   *archive.MemoryArchive
	publisher *testutil.FakePublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	area, err := staging.NewArea(t.TempDir())
	if err != nil {
		t.Fatalf("NewArea() error = %v", err)
	}

	ts := &testServer{
		matcher:   testutil.NewFakeMatcher(),
		directory: directory.NewMemoryDirectory(),
		archive:   archive.NewMemoryArchive(archive.Buckets{Visitor: "visitors", Enrollment: "employees"}),
		publisher: &testutil.FakePublisher{},
	}
	svc := gateway.NewService(ts.matcher, ts.directory, ts.archive, ts.publisher, area, gateway.Options{
		CollectionID: "employee",
		Threshold:    80,
	})
	ts.handler = NewRouter(RouterConfig{
		APIKey:         testAPIKey,
		MaxUploadBytes: 1 << 20,
		Service:        svc,
		Directory:      ts.directory,
		Hub:            ws.NewHub(),
		Checks: map[string]handlers.Check{
			"directory": ts.directory.Ping,
			"archive":   ts.archive.Ping,
		},
	})
	return ts
}

// multipartRequest builds a POST with a single "file" part. An empty
// filename sends the form without a file part.
func multipartRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	} else if err := writer.WriteField("note", "no file"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	ts.handler.ServeHTTP(recorder, req)
	return recorder
}

func TestPages(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/", "/addUser"} {
		recorder := ts.do(httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, recorder.Code)
		}
		if !strings.Contains(recorder.Body.String(), "<form") {
			t.Errorf("GET %s did not render a form", path)
		}
	}
}

func TestUpload_HTML(t *testing.T) {
	ts := newTestServer(t)
	ts.matcher.Faces["alice"] = models.FaceMatch{FaceID: "F1", Confidence: 95}
	_ = ts.directory.Register(context.Background(), models.Identity{FaceID: "F1", FirstName: "Alice", LastName: "Smith"})

	recorder := ts.do(multipartRequest(t, "/upload", "visitor.jpg", []byte("alice")))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	body := recorder.Body.String()
	for _, want := range []string{"visitor.jpg", "Alice", "Smith", "visitor added successfully"} {
		if !strings.Contains(body, want) {
			t.Errorf("page does not contain %q", want)
		}
	}
}

func TestUpload_JSON(t *testing.T) {
	ts := newTestServer(t)

	req := multipartRequest(t, "/upload", "stranger.jpg", []byte("nobody"))
	req.Header.Set("Accept", "application/json")
	recorder := ts.do(req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	var resp dto.IdentifyResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Matched || resp.FirstName != "Unknown" || resp.LastName != "Unknown" {
		t.Errorf("response = %+v, want unmatched Unknown Unknown", resp)
	}
}

func TestUpload_NoFile(t *testing.T) {
	ts := newTestServer(t)

	req := multipartRequest(t, "/upload", "", nil)
	req.Header.Set("Accept", "application/json")
	recorder := ts.do(req)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "file not found") {
		t.Errorf("body = %s", recorder.Body.String())
	}
	if ts.matcher.MatchCalls != 0 {
		t.Error("matcher called without a file")
	}
}

func TestUpload_TooLarge(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(multipartRequest(t, "/upload", "big.jpg", bytes.Repeat([]byte("x"), 2<<20)))

	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", recorder.Code)
	}
}

func TestAddEmployee(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     int
		wantBody string
		events   int
	}{
		{"valid", "jane_doe.jpg", http.StatusAccepted, "Employee added successfully", 1},
		{"no separator", "janedoe.jpg", http.StatusBadRequest, "Invalid naming convention", 0},
		{"two separators", "jane_doe_x.jpg", http.StatusBadRequest, "Invalid naming convention", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			recorder := ts.do(multipartRequest(t, "/add_employee", tt.filename, []byte("img")))

			if recorder.Code != tt.want {
				t.Errorf("status = %d, want %d", recorder.Code, tt.want)
			}
			if !strings.Contains(recorder.Body.String(), tt.wantBody) {
				t.Errorf("body does not contain %q", tt.wantBody)
			}
			if len(ts.publisher.Enrollments) != tt.events {
				t.Errorf("published %d events, want %d", len(ts.publisher.Enrollments), tt.events)
			}
		})
	}
}

func TestV1_RequiresAPIKey(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(multipartRequest(t, "/v1/identify", "v.jpg", []byte("x")))
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", recorder.Code)
	}
}

func TestV1_EnrollAndGetIdentity(t *testing.T) {
	ts := newTestServer(t)

	req := multipartRequest(t, "/v1/enrollments", "jane_doe.jpg", []byte("jane"))
	req.Header.Set("X-API-Key", testAPIKey)
	recorder := ts.do(req)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("enroll status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var enrolled dto.EnrollResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &enrolled); err != nil {
		t.Fatal(err)
	}
	if enrolled.Status != "pending" || enrolled.FirstName != "jane" || enrolled.LastName != "doe" {
		t.Errorf("enroll response = %+v", enrolled)
	}

	get := func(faceID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/identities/"+faceID, nil)
		req.Header.Set("X-API-Key", testAPIKey)
		return ts.do(req)
	}

	if recorder := get("F1"); recorder.Code != http.StatusNotFound {
		t.Errorf("before indexing status = %d, want 404", recorder.Code)
	}

	_ = ts.directory.Register(context.Background(), models.Identity{FaceID: "F1", FirstName: "jane", LastName: "doe"})
	recorder = get("F1")
	if recorder.Code != http.StatusOK {
		t.Fatalf("after indexing status = %d", recorder.Code)
	}
	var identity dto.IdentityResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &identity); err != nil {
		t.Fatal(err)
	}
	if identity.FirstName != "jane" || identity.LastName != "doe" {
		t.Errorf("identity = %+v", identity)
	}
}

func TestV1_GetIdentity_CreatedAtInUTC(t *testing.T) {
	ts := newTestServer(t)

	tokyo := time.FixedZone("JST", 9*60*60)
	_ = ts.directory.Register(context.Background(), models.Identity{
		FaceID:    "F7",
		FirstName: "kenji",
		LastName:  "sato",
		CreatedAt: time.Date(2026, 1, 2, 9, 0, 0, 0, tokyo),
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/identities/F7", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	recorder := ts.do(req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	var identity dto.IdentityResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &identity); err != nil {
		t.Fatal(err)
	}
	if identity.CreatedAt != "2026-01-02T00:00:00Z" {
		t.Errorf("CreatedAt = %q, want 2026-01-02T00:00:00Z", identity.CreatedAt)
	}
}

func TestReadyz(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusOK {
		t.Errorf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
}
