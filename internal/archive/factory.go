package archive

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/your-org/facegate/internal/config"
)

// NewFromConfig builds the Archive selected by cfg.Archive.Backend.
func NewFromConfig(cfg *config.Config, awsCfg aws.Config) (Archive, error) {
	buckets := Buckets{
		Visitor:    cfg.Archive.VisitorBucket,
		Enrollment: cfg.Archive.EnrollmentBucket,
	}

	switch cfg.Archive.Backend {
	case "minio":
		return NewMinIOArchive(cfg.MinIO, buckets, cfg.Archive.Timeout)
	case "s3":
		return NewS3Archive(awsCfg, cfg.S3, buckets, cfg.Archive.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Archive.Backend)
	}
}
