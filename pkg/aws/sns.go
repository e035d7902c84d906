package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSPublisher is a minimal interface for publishing messages to SNS.
type SNSPublisher interface {
	Publish(ctx context.Context, topicArn string, message []byte) error
}

// snsAPI is the part of the SDK client used here.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	client snsAPI
}

func NewSNSClient(cfg sdkaws.Config) *SNSClient {
	return &SNSClient{client: sns.NewFromConfig(cfg)}
}

// Publish publishes a raw message to the given SNS topic ARN.
func (s *SNSClient) Publish(ctx context.Context, topicArn string, message []byte) error {
	if topicArn == "" {
		return fmt.Errorf("empty topicArn")
	}
	input := &sns.PublishInput{
		TopicArn: sdkaws.String(topicArn),
		Message:  sdkaws.String(string(message)),
	}
	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", topicArn, err)
	}
	return nil
}

// SNSTopic binds a publisher to one topic so it can serve as an event sink.
type SNSTopic struct {
	publisher SNSPublisher
	arn       string
}

func NewSNSTopic(p SNSPublisher, arn string) *SNSTopic {
	return &SNSTopic{publisher: p, arn: arn}
}

func (t *SNSTopic) Name() string { return "sns" }

// Send publishes body to the bound topic. The key is carried inside the body.
func (t *SNSTopic) Send(ctx context.Context, _ string, body []byte) error {
	return t.publisher.Publish(ctx, t.arn, body)
}
