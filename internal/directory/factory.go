package directory

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/your-org/facegate/internal/config"
)

// NewFromConfig builds the Directory selected by cfg.Directory.Backend.
// The returned close func releases backend connections.
func NewFromConfig(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (Directory, func(), error) {
	switch cfg.Directory.Backend {
	case "postgres":
		pg, err := NewPostgresDirectory(ctx, cfg.Database, cfg.Directory.Timeout)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "dynamodb":
		return NewDynamoDirectory(awsCfg, cfg.DynamoDB.Table, cfg.DynamoDB.Endpoint, cfg.Directory.Timeout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown directory backend: %s", cfg.Directory.Backend)
	}
}
