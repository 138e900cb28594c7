package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/AshkanYarmoradi/go-dugout/notify"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	calls []*sns.PublishInput
	err   error
}

func (m *mockClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: stringPtr("msg-1")}, nil
}

const topic = "arn:aws:sns:us-east-1:123456789012:scores"

func TestPublisher_Publish(t *testing.T) {
	client := &mockClient{}
	p := New(WithClient(client))
	assert.Equal(t, "sns", p.Destination())

	err := p.Publish(context.Background(), []*notify.Message{{
		ID:          "m1-1-do",
		Destination: "sns:" + topic,
		Key:         "m1",
		Payload:     []byte(`{"matchId":"m1"}`),
		Headers:     map[string]string{"action": "AT_BAT"},
	}})
	require.NoError(t, err)
	require.Len(t, client.calls, 1)

	call := client.calls[0]
	assert.Equal(t, topic, *call.TopicArn)
	assert.Equal(t, `{"matchId":"m1"}`, *call.Message)
	assert.Equal(t, "AT_BAT", *call.MessageAttributes["action"].StringValue)
	assert.Nil(t, call.MessageGroupId)
}

func TestPublisher_Publish_FIFO(t *testing.T) {
	client := &mockClient{}
	p := New(WithClient(client), WithFIFO())

	require.NoError(t, p.Publish(context.Background(), []*notify.Message{{
		ID: "m1-1-do", Destination: "sns:" + topic + ".fifo", Key: "m1",
	}}))
	assert.Equal(t, "m1", *client.calls[0].MessageGroupId)
	assert.Equal(t, "m1-1-do", *client.calls[0].MessageDeduplicationId)
}

func TestPublisher_Publish_Errors(t *testing.T) {
	err := New().Publish(context.Background(), []*notify.Message{{Destination: "sns:" + topic}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client not configured")

	client := &mockClient{err: errors.New("throttled")}
	err = New(WithClient(client)).Publish(context.Background(), []*notify.Message{
		{Destination: "sns:"},
		{Destination: "sns:" + topic},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing topic ARN")
	assert.Contains(t, err.Error(), "throttled")
	assert.Len(t, client.calls, 1)
}
