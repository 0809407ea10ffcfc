// Package dynamodb implements the repository contracts on DynamoDB. Folder
// updates use conditional writes for optimistic locking; the audit log is an
// append-only table keyed by timestamp.
package dynamodb

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"curator-backend/internal/config"
	apperrors "curator-backend/internal/errors"
)

// NewClient builds a DynamoDB client from the database configuration. A
// non-empty endpoint overrides the resolver for local development.
func NewClient(ctx context.Context, cfg config.Database) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, apperrors.Configuration("AWS_CONFIG", "failed to load AWS configuration").
			WithCause(err)
	}

	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = &cfg.Endpoint
		})
	}
	return dynamodb.NewFromConfig(awsCfg, opts...), nil
}
