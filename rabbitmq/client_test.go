package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pendingConfirm resolves when the test sends a verdict on it.
type pendingConfirm chan bool

func (p pendingConfirm) WaitContext(ctx context.Context) (bool, error) {
	select {
	case ack := <-p:
		return ack, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	exchanges []string
	confirms  []pendingConfirm
	err       error
}

func (f *fakeChannel) publish(_ context.Context, exchange string, msg amqp.Publishing) (confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, msg)
	f.exchanges = append(f.exchanges, exchange)
	conf := make(pendingConfirm, 1)
	f.confirms = append(f.confirms, conf)
	return conf, nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) confirm(i int) pendingConfirm {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.confirms) {
		return nil
	}
	return f.confirms[i]
}

// autoConfirm answers every publish with ack as soon as it is made.
type autoConfirm struct {
	fakeChannel
	ack bool
}

func (a *autoConfirm) publish(ctx context.Context, exchange string, msg amqp.Publishing) (confirmation, error) {
	conf, err := a.fakeChannel.publish(ctx, exchange, msg)
	if err == nil {
		conf.(pendingConfirm) <- a.ack
	}
	return conf, err
}

func TestSend_Confirmed(t *testing.T) {
	ch := &autoConfirm{ack: true}
	c := newClient(ch, "notifications_fanout")

	require.NoError(t, c.Send(context.Background(), "order-1", []byte(`{}`)))
	require.NoError(t, c.Send(context.Background(), "order-1", []byte(`{}`)))
	require.Len(t, ch.published, 2)

	first := ch.published[0]
	assert.Equal(t, "notifications_fanout", ch.exchanges[0])
	assert.Equal(t, "order-1", first.Headers["order_id"])
	assert.Equal(t, "application/json", first.ContentType)
	assert.NotEmpty(t, first.MessageId)
	assert.NotEqual(t, first.MessageId, ch.published[1].MessageId)
}

func TestSend_Nack(t *testing.T) {
	c := newClient(&autoConfirm{ack: false}, "notifications_fanout")

	assert.ErrorContains(t, c.Send(context.Background(), "order-1", nil), "NACK")
}

func TestSend_PublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	c := newClient(ch, "notifications_fanout")

	assert.ErrorContains(t, c.Send(context.Background(), "order-1", nil), "channel closed")
}

func TestSend_LateConfirmDoesNotLeakIntoNextSend(t *testing.T) {
	ch := &fakeChannel{}
	c := newClient(ch, "notifications_fanout")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Send(ctx, "order-1", nil), context.DeadlineExceeded)

	// The broker NACKs the first message after its sender gave up.
	ch.confirm(0) <- false

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "order-2", nil) }()
	require.Eventually(t, func() bool { return ch.confirm(1) != nil }, time.Second, time.Millisecond)
	ch.confirm(1) <- true

	assert.NoError(t, <-done)
}

func TestPing_NoConnection(t *testing.T) {
	assert.Error(t, newClient(&fakeChannel{}, "x").Ping())
}
