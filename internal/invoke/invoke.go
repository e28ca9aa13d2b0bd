// Package invoke triggers the remote indexing function. The orchestrator runs
// under pipeline credentials; the indexer role is assumed per invocation so
// the function executes with its own, narrower permissions.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"podsearch/internal/config"
)

// Payload is the event sent to the indexing function.
type Payload struct {
	SiteID string `json:"siteId"`
	Job    string `json:"job"`
	RunID  string `json:"runId"`
}

// Trigger calls the remote indexer for one site and waits for its result.
type Trigger struct {
	client      *lambda.Client
	functionARN string
}

// NewTrigger builds a trigger using assume-role credentials when a role ARN
// is configured, otherwise the ambient credential chain.
func NewTrigger(ctx context.Context) (*Trigger, error) {
	if config.IndexerFunctionARN == "" {
		return nil, fmt.Errorf("INDEXER_FUNCTION_ARN is not configured")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if config.IndexerRoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		cfg.Credentials = stscreds.NewAssumeRoleProvider(stsClient, config.IndexerRoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = "podsearch-indexer"
				o.Duration = 15 * time.Minute
			})
		slog.Debug("Indexer role configured", "role", config.IndexerRoleARN)
	}

	return &Trigger{
		client:      lambda.NewFromConfig(cfg),
		functionARN: config.IndexerFunctionARN,
	}, nil
}

// Index invokes the remote indexer synchronously for one site. A non-nil
// FunctionError in the response is a job failure even though the API call
// succeeded.
func (t *Trigger) Index(ctx context.Context, siteID, jobKind string) error {
	payload, err := json.Marshal(Payload{
		SiteID: siteID,
		Job:    jobKind,
		RunID:  uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal indexer payload: %w", err)
	}

	slog.Info("Invoking remote indexer", "site", siteID, "job", jobKind)
	out, err := t.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: &t.functionARN,
		Payload:      payload,
	})
	if err != nil {
		return fmt.Errorf("failed to invoke indexer: %w", err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("indexer failed for site %s: %s: %s", siteID, *out.FunctionError, string(out.Payload))
	}
	return nil
}
