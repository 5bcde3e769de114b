package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAck struct {
	acked, nacked, requeue bool
}

func (f *fakeAck) Ack(multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func TestSettleAcksOnSuccess(t *testing.T) {
	ack := &fakeAck{}
	var gotKey string
	settle(context.Background(), "identity.user.created", []byte(`{}`), ack, func(ctx context.Context, key string, body []byte) error {
		gotKey = key
		return nil
	})
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, "identity.user.created", gotKey)
}

func TestSettleNacksWithoutRequeue(t *testing.T) {
	ack := &fakeAck{}
	settle(context.Background(), "k", nil, ack, func(ctx context.Context, key string, body []byte) error {
		return errors.New("bad payload")
	})
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.False(t, ack.acked)
}

func TestConsumerDisabledBlocksUntilCancel(t *testing.T) {
	c := NewConsumer("", "ex", "q", "identity.#")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Run(ctx, func(ctx context.Context, key string, body []byte) error { return nil })
	require.NoError(t, err)
}

func TestNoopPublisher(t *testing.T) {
	p := NewPublisher("", "ex")
	assert.Equal(t, "noop", PublisherMode(p))
	assert.Equal(t, "empty amqp url", PublisherNoopReason(p))
	assert.NoError(t, p.Publish(context.Background(), "k", map[string]string{"a": "b"}, nil))
	assert.NoError(t, p.Close())
}
