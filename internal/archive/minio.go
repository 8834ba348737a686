package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
)

type MinIOArchive struct {
	client  *minio.Client
	buckets Buckets
	timeout time.Duration
}

var _ Archive = (*MinIOArchive)(nil)

func NewMinIOArchive(cfg config.MinIOConfig, buckets Buckets, timeout time.Duration) (*MinIOArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOArchive{client: client, buckets: buckets, timeout: timeout}, nil
}

func (a *MinIOArchive) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *MinIOArchive) BucketName(bucket Bucket) string {
	name, _ := a.buckets.name(bucket)
	return name
}

// EnsureBuckets creates both archive buckets if they don't exist.
func (a *MinIOArchive) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range a.buckets.all() {
		exists, err := a.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := a.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// Store uploads data under key in the selected archive.
func (a *MinIOArchive) Store(ctx context.Context, bucket Bucket, key string, data []byte, obj Object) error {
	name, err := a.buckets.name(bucket)
	if err != nil {
		return &BackendError{Op: "put", Bucket: string(bucket), Key: key, Err: err}
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	_, err = a.client.PutObject(ctx, name, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		UserMetadata: obj.Metadata,
	})
	observability.BackendDuration.WithLabelValues("minio", "put").Observe(time.Since(start).Seconds())
	if err != nil {
		return &BackendError{Op: "put", Bucket: name, Key: key, Err: err}
	}
	return nil
}

// Fetch retrieves an object's bytes.
func (a *MinIOArchive) Fetch(ctx context.Context, bucketName, key string) ([]byte, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	obj, err := a.client.GetObject(ctx, bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, &BackendError{Op: "get", Bucket: bucketName, Key: key, Err: err}
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, &BackendError{Op: "read", Bucket: bucketName, Key: key, Err: err}
	}
	return data, nil
}

// Ping checks MinIO connectivity.
func (a *MinIOArchive) Ping(ctx context.Context) error {
	_, err := a.client.BucketExists(ctx, a.buckets.Visitor)
	return err
}
