// Package naming implements the firstname_lastname.ext enrollment convention.
package naming

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/facegate/internal/models"
)

const separator = "_"

var ErrInvalidNamingConvention = errors.New("invalid naming convention: expected firstname_lastname.ext")

// ParseEnrollmentFilename extracts the person's name from an enrollment
// filename. The name must be a bare file name with exactly one extension
// and exactly one separator splitting two non-empty segments.
func ParseEnrollmentFilename(filename string) (models.Enrollment, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) {
		return models.Enrollment{}, ErrInvalidNamingConvention
	}

	stem, ext, ok := strings.Cut(filename, ".")
	if !ok || ext == "" || strings.Contains(ext, ".") {
		return models.Enrollment{}, ErrInvalidNamingConvention
	}

	parts := strings.Split(stem, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return models.Enrollment{}, ErrInvalidNamingConvention
	}

	return models.Enrollment{FirstName: parts[0], LastName: parts[1]}, nil
}

// ContentHash returns the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IdempotencyKey identifies one source image: the same key with the same
// bytes always yields the same value.
func IdempotencyKey(key, contentHash string) string {
	if contentHash == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", key, contentHash)
}
