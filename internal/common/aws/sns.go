// internal/common/aws/sns.go
package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"product-recommender/internal/models"
)

// SNSService is the subset of the SNS client the publisher uses.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// OutcomePublisher posts request outcomes to an SNS topic.
type OutcomePublisher struct {
	client   SNSService
	topicARN string
}

func NewOutcomePublisher(ctx context.Context, region, topicARN string) (*OutcomePublisher, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("sns topic arn is empty")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewOutcomePublisherWithClient(sns.NewFromConfig(cfg), topicARN), nil
}

func NewOutcomePublisherWithClient(client SNSService, topicARN string) *OutcomePublisher {
	return &OutcomePublisher{client: client, topicARN: topicARN}
}

func (p *OutcomePublisher) PublishOutcome(ctx context.Context, outcome models.Outcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	result := string(outcome.Kind)
	if !outcome.Succeeded() {
		result = "failed"
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String("recommendation outcome"),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"route":   {DataType: aws.String("String"), StringValue: aws.String(nonEmpty(outcome.Route))},
			"outcome": {DataType: aws.String("String"), StringValue: aws.String(nonEmpty(result))},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}
	return nil
}

// SNS rejects attributes with empty values.
func nonEmpty(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
