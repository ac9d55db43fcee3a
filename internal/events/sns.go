package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the slice of the SNS client the publisher needs.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher fans event batches out to a single SNS topic. The event name
// and owner travel as message attributes so consumers can filter with
// subscription policies instead of parsing bodies.
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSPublisher builds a publisher for the given topic.
func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

type envelope struct {
	Event   string `json:"event"`
	OwnerID string `json:"ownerId"`
	Data    []any  `json:"data"`
}

// Publish serialises the batch into one SNS message.
func (p *SNSPublisher) Publish(ctx context.Context, event, ownerID string, payloads []any) error {
	body, err := json.Marshal(envelope{Event: event, OwnerID: ownerID, Data: payloads})
	if err != nil {
		return fmt.Errorf("sns publisher: marshal batch: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event),
			},
			"ownerId": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ownerID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publisher: publish %s: %w", event, err)
	}
	return nil
}
