package rss

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// CloudFrontInvalidator purges cached paths after new audio is published so
// clients see the fresh manifest and feed immediately.
type CloudFrontInvalidator struct {
	client         *cloudfront.Client
	distributionID string
}

// NewCloudFrontInvalidator builds an invalidator for one distribution.
func NewCloudFrontInvalidator(ctx context.Context, region, distributionID string) (*CloudFrontInvalidator, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &CloudFrontInvalidator{
		client:         cloudfront.NewFromConfig(cfg),
		distributionID: distributionID,
	}, nil
}

func (c *CloudFrontInvalidator) Invalidate(ctx context.Context, paths []string) error {
	items := make([]string, len(paths))
	copy(items, paths)

	_, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(c.distributionID),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String(fmt.Sprintf("podsearch-%d", time.Now().UnixNano())),
			Paths: &cftypes.Paths{
				Items:    items,
				Quantity: aws.Int32(int32(len(items))),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create invalidation: %w", err)
	}
	slog.Info("CDN invalidation created", "distribution", c.distributionID, "paths", len(items))
	return nil
}
