package notifications

import (
	"context"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay shares hub traffic between service instances over Redis pub/sub.
// Channel names are prefixed so the relay can pattern-subscribe to all of them.
type RedisRelay struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisRelay(client *redis.Client, prefix string, logger *zap.Logger) *RedisRelay {
	if prefix == "" {
		prefix = "order-tracking:"
	}
	return &RedisRelay{client: client, prefix: prefix, logger: logger}
}

func (r *RedisRelay) Name() string { return "redis" }

func (r *RedisRelay) Publish(ctx context.Context, channel string, body []byte) error {
	return r.client.Publish(ctx, r.prefix+channel, body).Err()
}

// Start pattern-subscribes to every prefixed channel and hands each message
// to deliver from a single goroutine, preserving per-channel order.
func (r *RedisRelay) Start(deliver func(channel string, body []byte)) error {
	ctx := context.Background()
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	// Receive blocks until the subscription is confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	r.mu.Lock()
	r.pubsub = pubsub
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		r.relayLoop(pubsub.Channel(), deliver)
	}()
	return nil
}

func (r *RedisRelay) relayLoop(msgs <-chan *redis.Message, deliver func(channel string, body []byte)) {
	for msg := range msgs {
		channel, ok := strings.CutPrefix(msg.Channel, r.prefix)
		if !ok {
			r.logger.Debug("Ignoring message outside relay prefix", zap.String("channel", msg.Channel))
			continue
		}
		deliver(channel, []byte(msg.Payload))
	}
}

func (r *RedisRelay) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
