package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-dugout/notify"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	topic  string
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newFakePublisher(failing map[string]error) (*Publisher, map[string]*fakeWriter) {
	writers := make(map[string]*fakeWriter)
	p := New(WithWriterFactory(func(topic string) Writer {
		w := &fakeWriter{topic: topic, err: failing[topic]}
		writers[topic] = w
		return w
	}))
	return p, writers
}

func TestNew_Defaults(t *testing.T) {
	p := New()
	assert.Equal(t, "kafka", p.Destination())
	assert.Equal(t, []string{"localhost:9092"}, p.brokers)
	assert.IsType(t, &kafkago.Hash{}, p.balancer)

	w, ok := p.writer("scores").(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "scores", w.Topic)
}

func TestNew_Options(t *testing.T) {
	balancer := &kafkago.RoundRobin{}
	p := New(WithBrokers("b1:9092", "b2:9092"), WithBalancer(balancer), WithBatchTimeout(time.Second))
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, p.brokers)
	assert.Equal(t, balancer, p.balancer)
	assert.Equal(t, time.Second, p.batchTimeout)
}

func TestPublisher_Publish(t *testing.T) {
	p, writers := newFakePublisher(nil)

	err := p.Publish(context.Background(), []*notify.Message{
		{Destination: "kafka:scores", Key: "m1", Payload: []byte(`{"seq":1}`), Headers: map[string]string{"action": "AT_BAT"}},
		{Destination: "kafka:scores", Key: "m1", Payload: []byte(`{"seq":2}`)},
		{Destination: "kafka:audit", Key: "m1", Payload: []byte(`{"seq":2}`)},
	})
	require.NoError(t, err)

	require.Len(t, writers["scores"].msgs, 2)
	assert.Equal(t, []byte("m1"), writers["scores"].msgs[0].Key)
	assert.Equal(t, "action", writers["scores"].msgs[0].Headers[0].Key)
	assert.Len(t, writers["audit"].msgs, 1)

	require.NoError(t, p.Close())
	assert.True(t, writers["scores"].closed)
	assert.Empty(t, p.writers)
}

func TestPublisher_Publish_JoinsErrors(t *testing.T) {
	p, writers := newFakePublisher(map[string]error{"audit": errors.New("broker down")})

	err := p.Publish(context.Background(), []*notify.Message{
		{Destination: "kafka:"},
		{Destination: "kafka:audit", Key: "m1"},
		{Destination: "kafka:scores", Key: "m1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing topic")
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, writers["scores"].msgs, 1)
}
