package recognition

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/aws/smithy-go"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// rekognitionAPI is the subset of the Rekognition client the matcher uses.
type rekognitionAPI interface {
	SearchFacesByImage(ctx context.Context, in *rekognition.SearchFacesByImageInput, optFns ...func(*rekognition.Options)) (*rekognition.SearchFacesByImageOutput, error)
	IndexFaces(ctx context.Context, in *rekognition.IndexFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.IndexFacesOutput, error)
	CreateCollection(ctx context.Context, in *rekognition.CreateCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateCollectionOutput, error)
	DescribeCollection(ctx context.Context, in *rekognition.DescribeCollectionInput, optFns ...func(*rekognition.Options)) (*rekognition.DescribeCollectionOutput, error)
}

type RekognitionMatcher struct {
	client  rekognitionAPI
	timeout time.Duration
}

var _ Matcher = (*RekognitionMatcher)(nil)

func NewRekognitionMatcher(awsCfg aws.Config, timeout time.Duration) *RekognitionMatcher {
	return newRekognitionMatcher(rekognition.NewFromConfig(awsCfg), timeout)
}

func newRekognitionMatcher(client rekognitionAPI, timeout time.Duration) *RekognitionMatcher {
	return &RekognitionMatcher{client: client, timeout: timeout}
}

func (m *RekognitionMatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *RekognitionMatcher) Match(ctx context.Context, image []byte, collectionID string, threshold float64) ([]models.FaceMatch, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := m.client.SearchFacesByImage(ctx, &rekognition.SearchFacesByImageInput{
		CollectionId:       aws.String(collectionID),
		Image:              &types.Image{Bytes: image},
		FaceMatchThreshold: aws.Float32(float32(threshold)),
		MaxFaces:           aws.Int32(1),
	})
	observability.BackendDuration.WithLabelValues("rekognition", "search").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &MatchError{Op: "search", Err: err}
	}

	matches := make([]models.FaceMatch, 0, 1)
	for _, fm := range out.FaceMatches {
		if fm.Face == nil || fm.Face.FaceId == nil {
			continue
		}
		matches = append(matches, models.FaceMatch{
			FaceID:     *fm.Face.FaceId,
			Confidence: float64(aws.ToFloat32(fm.Similarity)),
		})
		break
	}
	return matches, nil
}

func (m *RekognitionMatcher) Index(ctx context.Context, img models.ImageRef, collectionID string) (*models.IndexedFace, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	image := &types.Image{}
	if len(img.Bytes) > 0 {
		image.Bytes = img.Bytes
	} else {
		image.S3Object = &types.S3Object{Bucket: aws.String(img.Bucket), Name: aws.String(img.Key)}
	}

	externalID := ExternalImageID(img.Key)

	start := time.Now()
	out, err := m.client.IndexFaces(ctx, &rekognition.IndexFacesInput{
		CollectionId:    aws.String(collectionID),
		Image:           image,
		ExternalImageId: aws.String(externalID),
		MaxFaces:        aws.Int32(1),
		QualityFilter:   types.QualityFilterAuto,
	})
	observability.BackendDuration.WithLabelValues("rekognition", "index").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &MatchError{Op: "index", Err: err, Permanent: isPermanent(err)}
	}
	if len(out.FaceRecords) == 0 || out.FaceRecords[0].Face == nil || out.FaceRecords[0].Face.FaceId == nil {
		return nil, &MatchError{
			Op:        "index",
			Err:       fmt.Errorf("no face indexed from %s/%s", img.Bucket, img.Key),
			Permanent: true,
		}
	}

	face := out.FaceRecords[0].Face
	return &models.IndexedFace{
		FaceID:          *face.FaceId,
		ExternalImageID: aws.ToString(face.ExternalImageId),
		Confidence:      float64(aws.ToFloat32(face.Confidence)),
	}, nil
}

// EnsureCollection creates the collection if it does not exist.
func (m *RekognitionMatcher) EnsureCollection(ctx context.Context, collectionID string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.client.CreateCollection(ctx, &rekognition.CreateCollectionInput{
		CollectionId: aws.String(collectionID),
	})
	if err != nil {
		var exists *types.ResourceAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return &MatchError{Op: "create collection", Err: err}
	}
	return nil
}

func (m *RekognitionMatcher) Ping(ctx context.Context, collectionID string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	_, err := m.client.DescribeCollection(ctx, &rekognition.DescribeCollectionInput{
		CollectionId: aws.String(collectionID),
	})
	if err != nil {
		return &MatchError{Op: "describe collection", Err: err}
	}
	return nil
}

// isPermanent reports API errors caused by the image itself.
func isPermanent(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "InvalidParameterException", "InvalidImageFormatException",
		"ImageTooLargeException", "InvalidS3ObjectException":
		return true
	}
	return false
}

var externalIDInvalid = regexp.MustCompile(`[^a-zA-Z0-9_.\-:]`)

// ExternalImageID maps an object key onto the character set Rekognition
// accepts for ExternalImageId.
func ExternalImageID(key string) string {
	id := externalIDInvalid.ReplaceAllString(key, "_")
	if len(id) > 255 {
		id = id[len(id)-255:]
	}
	return id
}
