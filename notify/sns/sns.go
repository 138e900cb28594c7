// Package sns publishes notifications to AWS SNS topics.
package sns

import (
	"context"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-dugout/notify"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

var _ notify.Publisher = (*Publisher)(nil)

// Client is the subset of the SNS API used by the publisher.
type Client interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher publishes messages to the topic ARN named in the destination.
// Destination format: "sns:arn:aws:sns:region:account:topic".
type Publisher struct {
	client Client
	fifo   bool
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClient sets the SNS client.
func WithClient(client Client) Option {
	return func(p *Publisher) {
		p.client = client
	}
}

// WithFIFO sets the message group and deduplication ids for FIFO topics.
// The group is the match id so a match's outcomes stay ordered.
func WithFIFO() Option {
	return func(p *Publisher) {
		p.fifo = true
	}
}

// New creates a Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Destination implements notify.Publisher.
func (p *Publisher) Destination() string {
	return "sns"
}

// Publish sends each message. All messages are attempted; errors are joined.
func (p *Publisher) Publish(ctx context.Context, messages []*notify.Message) error {
	if p.client == nil {
		return fmt.Errorf("sns: client not configured")
	}

	var errs []error
	for _, msg := range messages {
		topicARN := notify.TrimPrefix(msg.Destination, "sns")
		if topicARN == "" {
			errs = append(errs, fmt.Errorf("sns: invalid destination %q: missing topic ARN", msg.Destination))
			continue
		}

		input := &sns.PublishInput{
			TopicArn: &topicARN,
			Message:  stringPtr(string(msg.Payload)),
		}
		if len(msg.Headers) > 0 {
			input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(msg.Headers))
			for k, v := range msg.Headers {
				input.MessageAttributes[k] = types.MessageAttributeValue{
					DataType:    stringPtr("String"),
					StringValue: stringPtr(v),
				}
			}
		}
		if p.fifo {
			input.MessageGroupId = stringPtr(msg.Key)
			input.MessageDeduplicationId = stringPtr(msg.ID)
		}

		if _, err := p.client.Publish(ctx, input); err != nil {
			errs = append(errs, fmt.Errorf("sns: failed to publish to %s: %w", topicARN, err))
		}
	}
	return errors.Join(errs...)
}

func stringPtr(s string) *string {
	return &s
}
