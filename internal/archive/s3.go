package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
)

type S3Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	buckets  Buckets
	region   string
	timeout  time.Duration
}

var _ Archive = (*S3Archive)(nil)

func NewS3Archive(awsCfg aws.Config, cfg config.S3Config, buckets Buckets, timeout time.Duration) *S3Archive {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Archive{
		client:   client,
		uploader: manager.NewUploader(client),
		buckets:  buckets,
		region:   awsCfg.Region,
		timeout:  timeout,
	}
}

func (a *S3Archive) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *S3Archive) BucketName(bucket Bucket) string {
	name, _ := a.buckets.name(bucket)
	return name
}

func (a *S3Archive) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range a.buckets.all() {
		_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err == nil {
			continue
		}
		var notFound *types.NotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}

		in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
		if a.region != "" && a.region != "us-east-1" {
			in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(a.region),
			}
		}
		if _, err := a.client.CreateBucket(ctx, in); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func (a *S3Archive) Store(ctx context.Context, bucket Bucket, key string, data []byte, obj Object) error {
	name, err := a.buckets.name(bucket)
	if err != nil {
		return &BackendError{Op: "put", Bucket: string(bucket), Key: key, Err: err}
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	in := &s3.PutObjectInput{
		Bucket:   aws.String(name),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: obj.Metadata,
	}
	if obj.ContentType != "" {
		in.ContentType = aws.String(obj.ContentType)
	}

	start := time.Now()
	_, err = a.uploader.Upload(ctx, in)
	observability.BackendDuration.WithLabelValues("s3", "put").Observe(time.Since(start).Seconds())
	if err != nil {
		return &BackendError{Op: "put", Bucket: name, Key: key, Err: err}
	}
	return nil
}

func (a *S3Archive) Fetch(ctx context.Context, bucketName, key string) ([]byte, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &BackendError{Op: "get", Bucket: bucketName, Key: key, Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &BackendError{Op: "read", Bucket: bucketName, Key: key, Err: err}
	}
	return data, nil
}

func (a *S3Archive) Ping(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.buckets.Visitor)})
	return err
}
