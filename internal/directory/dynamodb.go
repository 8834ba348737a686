package directory

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/your-org/facegate/internal/models"
)

// Attribute names of the employee table. Source markers share the table
// under a prefixed hash key.
const (
	attrFaceID    = "rekID"
	attrFirstName = "firstname"
	attrLastName  = "lastname"
	attrSourceKey = "source_key"
	attrCreatedAt = "created_at"
	attrMarkerFor = "face_id"

	sourceMarkerPrefix = "source#"
)

type dynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type DynamoDirectory struct {
	client  dynamoAPI
	table   string
	timeout time.Duration
}

var _ Directory = (*DynamoDirectory)(nil)

func NewDynamoDirectory(awsCfg aws.Config, table, endpoint string, timeout time.Duration) *DynamoDirectory {
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return newDynamoDirectory(client, table, timeout)
}

func newDynamoDirectory(client dynamoAPI, table string, timeout time.Duration) *DynamoDirectory {
	return &DynamoDirectory{client: client, table: table, timeout: timeout}
}

func (d *DynamoDirectory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

func (d *DynamoDirectory) Lookup(ctx context.Context, faceID string) (*models.Identity, error) {
	item, err := d.getItem(ctx, "lookup", faceID)
	if err != nil {
		return nil, err
	}
	return identityFromItem(item), nil
}

func (d *DynamoDirectory) LookupSource(ctx context.Context, sourceKey string) (*models.Identity, error) {
	marker, err := d.getItem(ctx, "lookup source", sourceMarkerPrefix+sourceKey)
	if err != nil {
		return nil, err
	}
	faceID := stringAttr(marker, attrMarkerFor)
	if faceID == "" {
		return nil, ErrNotFound
	}
	return d.Lookup(ctx, faceID)
}

func (d *DynamoDirectory) getItem(ctx context.Context, op, key string) (map[string]types.AttributeValue, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	defer observeSince("dynamodb", op, time.Now())

	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{attrFaceID: &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, backendErr(op, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

func (d *DynamoDirectory) Register(ctx context.Context, identity models.Identity) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	defer observeSince("dynamodb", "register", time.Now())

	now := time.Now().UTC().Format(time.RFC3339)
	item := map[string]types.AttributeValue{
		attrFaceID:    &types.AttributeValueMemberS{Value: identity.FaceID},
		attrFirstName: &types.AttributeValueMemberS{Value: identity.FirstName},
		attrLastName:  &types.AttributeValueMemberS{Value: identity.LastName},
		attrCreatedAt: &types.AttributeValueMemberS{Value: now},
	}
	cond := aws.String("attribute_not_exists(" + attrFaceID + ")")

	if identity.SourceKey == "" {
		_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(d.table),
			Item:                item,
			ConditionExpression: cond,
		})
		if err != nil {
			var ccf *types.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				return ErrAlreadyExists
			}
			return backendErr("register", err)
		}
		return nil
	}

	item[attrSourceKey] = &types.AttributeValueMemberS{Value: identity.SourceKey}
	marker := map[string]types.AttributeValue{
		attrFaceID:    &types.AttributeValueMemberS{Value: sourceMarkerPrefix + identity.SourceKey},
		attrMarkerFor: &types.AttributeValueMemberS{Value: identity.FaceID},
		attrCreatedAt: &types.AttributeValueMemberS{Value: now},
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(d.table), Item: item, ConditionExpression: cond}},
			{Put: &types.Put{TableName: aws.String(d.table), Item: marker, ConditionExpression: cond}},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, r := range canceled.CancellationReasons {
				if aws.ToString(r.Code) == "ConditionalCheckFailed" {
					return ErrAlreadyExists
				}
			}
		}
		return backendErr("register", err)
	}
	return nil
}

func (d *DynamoDirectory) Ping(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if _, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)}); err != nil {
		return backendErr("ping", err)
	}
	return nil
}

func identityFromItem(item map[string]types.AttributeValue) *models.Identity {
	id := &models.Identity{
		FaceID:    stringAttr(item, attrFaceID),
		FirstName: stringAttr(item, attrFirstName),
		LastName:  stringAttr(item, attrLastName),
		SourceKey: stringAttr(item, attrSourceKey),
	}
	if ts, err := time.Parse(time.RFC3339, stringAttr(item, attrCreatedAt)); err == nil {
		id.CreatedAt = ts
	}
	return id
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}
