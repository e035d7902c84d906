package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("notification hub is closed")

// Handler receives the encoded message published to channel.
type Handler func(channel string, body []byte)

// Relay carries published messages between hub instances. When a relay is set
// every publish goes through it and local delivery happens when the relay
// hands the message back.
type Relay interface {
	Name() string
	Publish(ctx context.Context, channel string, body []byte) error
	Start(deliver func(channel string, body []byte)) error
	Close() error
}

// Subscription is one (channel, handler) registration with its own bounded
// queue and delivery goroutine.
type Subscription struct {
	ID      uuid.UUID
	Channel string

	queue   chan []byte
	done    chan struct{}
	handler Handler
}

// Status is a point-in-time view of the hub.
type Status struct {
	Connected   bool   `json:"connected"`
	Mode        string `json:"mode"`
	Channels    int    `json:"channels"`
	Subscribers int    `json:"subscribers"`
}

// Hub fans messages out to channel subscribers. Publish never blocks on a
// subscriber: a full subscriber queue drops the message for that subscriber.
type Hub struct {
	buffer int
	relay  Relay
	logger *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[uuid.UUID]*Subscription
	closed   bool
	wg       sync.WaitGroup
}

// NewHub creates an in-process hub. buffer is the per-subscriber queue length.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		buffer:   buffer,
		logger:   logger,
		channels: make(map[string]map[uuid.UUID]*Subscription),
	}
}

// UseRelay routes publishes through r and starts receiving from it.
func (h *Hub) UseRelay(r Relay) error {
	if err := r.Start(h.dispatch); err != nil {
		return err
	}
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
	h.logger.Info("Notification hub relay enabled", zap.String("relay", r.Name()))
	return nil
}

// Publish encodes message and delivers it to every subscriber of channel.
// It returns false when the message could not be handed to the delivery
// substrate. A channel without subscribers is not a failure.
func (h *Hub) Publish(ctx context.Context, channel string, message interface{}) bool {
	h.mu.RLock()
	closed, relay := h.closed, h.relay
	h.mu.RUnlock()
	if closed {
		h.fail(channel, ErrHubClosed)
		return false
	}

	body, err := json.Marshal(message)
	if err != nil {
		h.fail(channel, err)
		return false
	}

	if relay != nil {
		if err := relay.Publish(ctx, channel, body); err != nil {
			h.fail(channel, err)
			return false
		}
	} else {
		h.dispatch(channel, body)
	}

	metrics.HubMessagesPublishedTotal.WithLabelValues(kindOf(channel)).Inc()
	return true
}

func (h *Hub) fail(channel string, err error) {
	metrics.HubPublishFailuresTotal.Inc()
	h.logger.Warn("Failed to publish notification",
		zap.Error(&apperrors.DeliveryError{Channel: channel, Err: err}),
	)
}

func (h *Hub) dispatch(channel string, body []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.channels[channel] {
		select {
		case sub.queue <- body:
		default:
			metrics.HubMessagesDroppedTotal.Inc()
			h.logger.Warn("Subscriber queue full, dropping message",
				zap.String("channel", channel),
				zap.String("subscription_id", sub.ID.String()),
			)
		}
	}
}

// Subscribe registers handler on channel. Messages reach the handler in
// publish order on a goroutine owned by the subscription.
func (h *Hub) Subscribe(channel string, handler Handler) (*Subscription, error) {
	sub := &Subscription{
		ID:      uuid.New(),
		Channel: channel,
		queue:   make(chan []byte, h.buffer),
		done:    make(chan struct{}),
		handler: handler,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[uuid.UUID]*Subscription)
		h.channels[channel] = subs
	}
	subs[sub.ID] = sub

	h.wg.Add(1)
	go h.deliver(sub)
	return sub, nil
}

func (h *Hub) deliver(sub *Subscription) {
	defer h.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case body := <-sub.queue:
			sub.handler(sub.Channel, body)
		}
	}
}

// Unsubscribe removes sub. It is safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

func (h *Hub) remove(sub *Subscription) {
	subs, ok := h.channels[sub.Channel]
	if !ok {
		return
	}
	if _, ok := subs[sub.ID]; !ok {
		return
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.channels, sub.Channel)
	}
	close(sub.done)
}

func (h *Hub) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Status{Connected: !h.closed, Mode: "local", Channels: len(h.channels)}
	if h.relay != nil {
		st.Mode = h.relay.Name()
	}
	for _, subs := range h.channels {
		st.Subscribers += len(subs)
	}
	return st
}

// Close drops every subscription, waits for in-flight handlers and closes
// the relay.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for _, subs := range h.channels {
		for _, sub := range subs {
			h.remove(sub)
		}
	}
	relay := h.relay
	h.mu.Unlock()

	h.wg.Wait()
	if relay != nil {
		return relay.Close()
	}
	return nil
}
