package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"order-tracking-service/metrics"

	"go.uber.org/zap"
)

// Sink is an out-of-process consumer of domain events (Kafka topic, SNS topic,
// AMQP exchange).
type Sink interface {
	Name() string
	Send(ctx context.Context, key string, body []byte) error
}

// Record is the wire form of a domain event sent to sinks.
type Record struct {
	EventType      string    `json:"event_type"`
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	UserID         string    `json:"user_id"`
	RestaurantID   string    `json:"restaurant_id"`
	DriverID       *string   `json:"driver_id,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	TotalAmount    float64   `json:"total_amount"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewRecord flattens a domain event. ok is false for events sinks do not carry.
func NewRecord(evt Event) (rec Record, ok bool) {
	switch p := evt.Payload.(type) {
	case OrderCreatedEvent:
		rec = recordFor(evt, p.Order.ID.String(), p.Order.OrderNumber, p.Order.UserID, p.Order.RestaurantID, p.Order.DriverID, string(p.Order.Status), p.Order.TotalAmount)
	case OrderStatusChangedEvent:
		rec = recordFor(evt, p.Order.ID.String(), p.Order.OrderNumber, p.Order.UserID, p.Order.RestaurantID, p.Order.DriverID, string(p.Order.Status), p.Order.TotalAmount)
		rec.PreviousStatus = string(p.PreviousStatus)
	default:
		return Record{}, false
	}
	return rec, true
}

func recordFor(evt Event, id, number, user, restaurant string, driver *string, status string, total float64) Record {
	return Record{
		EventType:    evt.Type.String(),
		OrderID:      id,
		OrderNumber:  number,
		UserID:       user,
		RestaurantID: restaurant,
		DriverID:     driver,
		Status:       status,
		TotalAmount:  total,
		Timestamp:    evt.Timestamp,
	}
}

// Mirror forwards domain events to sinks from a background worker so that slow
// brokers never hold up order processing. Events that do not fit in the queue
// are dropped and logged.
type Mirror struct {
	sinks   []Sink
	queue   chan Record
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewMirror(logger *zap.Logger, buffer int, sinks ...Sink) *Mirror {
	if buffer <= 0 {
		buffer = 256
	}
	return &Mirror{
		sinks:   sinks,
		queue:   make(chan Record, buffer),
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Handle is an EventBus handler.
func (m *Mirror) Handle(evt Event) {
	if len(m.sinks) == 0 {
		return
	}
	rec, ok := NewRecord(evt)
	if !ok {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- rec:
	default:
		m.logger.Warn("Event mirror queue full, dropping event",
			zap.String("event_type", rec.EventType),
			zap.String("order_id", rec.OrderID),
		)
	}
}

// Start runs the worker until Close.
func (m *Mirror) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for rec := range m.queue {
			m.forward(rec)
		}
	}()
}

// Close drains queued events and stops the worker.
func (m *Mirror) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Mirror) forward(rec Record) {
	body, err := json.Marshal(rec)
	if err != nil {
		m.logger.Error("Failed to marshal event record", zap.Error(err))
		return
	}
	for _, s := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		err := s.Send(ctx, rec.OrderID, body)
		cancel()
		if err != nil {
			metrics.EventMirrorFailuresTotal.WithLabelValues(s.Name()).Inc()
			m.logger.Error("Failed to mirror event",
				zap.String("sink", s.Name()),
				zap.String("event_type", rec.EventType),
				zap.String("order_id", rec.OrderID),
				zap.Error(err),
			)
		}
	}
}
