package naming

import (
	"errors"
	"testing"
)

func TestParseEnrollmentFilename(t *testing.T) {
	tests := []struct {
		filename  string
		wantFirst string
		wantLast  string
		wantErr   bool
	}{
		{filename: "alice_smith.jpg", wantFirst: "alice", wantLast: "smith"},
		{filename: "jane_doe.png", wantFirst: "jane", wantLast: "doe"},
		{filename: "Jean-Luc_Picard.jpeg", wantFirst: "Jean-Luc", wantLast: "Picard"},
		{filename: "alice.jpg", wantErr: true},
		{filename: "alice_.jpg", wantErr: true},
		{filename: "_smith.jpg", wantErr: true},
		{filename: "_.jpg", wantErr: true},
		{filename: "alice_bob_smith.jpg", wantErr: true},
		{filename: "alice_smith", wantErr: true},
		{filename: "alice_smith.", wantErr: true},
		{filename: "alice_smith.tar.gz", wantErr: true},
		{filename: "../alice_smith.jpg", wantErr: true},
		{filename: `dir\alice_smith.jpg`, wantErr: true},
		{filename: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := ParseEnrollmentFilename(tt.filename)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNamingConvention) {
					t.Fatalf("ParseEnrollmentFilename(%q) error = %v, want ErrInvalidNamingConvention", tt.filename, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEnrollmentFilename(%q) unexpected error: %v", tt.filename, err)
			}
			if got.FirstName != tt.wantFirst || got.LastName != tt.wantLast {
				t.Errorf("ParseEnrollmentFilename(%q) = (%q, %q), want (%q, %q)",
					tt.filename, got.FirstName, got.LastName, tt.wantFirst, tt.wantLast)
			}
		})
	}
}

func TestIdempotencyKey(t *testing.T) {
	a := IdempotencyKey("jane_doe.jpg", ContentHash([]byte("one")))
	b := IdempotencyKey("jane_doe.jpg", ContentHash([]byte("one")))
	c := IdempotencyKey("jane_doe.jpg", ContentHash([]byte("two")))

	if a != b {
		t.Errorf("same key and content gave %q and %q", a, b)
	}
	if a == c {
		t.Errorf("different content gave the same key %q", a)
	}
	if got := IdempotencyKey("jane_doe.jpg", ""); got != "jane_doe.jpg" {
		t.Errorf("IdempotencyKey without hash = %q, want the bare key", got)
	}
}
