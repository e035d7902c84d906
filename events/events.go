package events

import (
	"sync"
	"time"

	"order-tracking-service/models"
)

type EventType int

const (
	EventOrderCreated EventType = iota + 1
	EventOrderStatusChanged
)

func (t EventType) String() string {
	switch t {
	case EventOrderCreated:
		return "order_created"
	case EventOrderStatusChanged:
		return "order_status_changed"
	default:
		return "unknown"
	}
}

// Event is a domain event emitted after a state change has been committed.
type Event struct {
	Type      EventType
	Payload   interface{}
	Timestamp time.Time
}

// --- Event payloads ---

type OrderCreatedEvent struct {
	Order models.Order
}

type OrderStatusChangedEvent struct {
	Order            models.Order
	PreviousStatus   models.OrderStatus
	PreviousDriverID *string
	Tracking         models.TrackingEvent
}

// DriverAssigned reports whether the transition set a new driver on the order.
func (e OrderStatusChangedEvent) DriverAssigned() bool {
	if e.Order.DriverID == nil {
		return false
	}
	return e.PreviousDriverID == nil || *e.PreviousDriverID != *e.Order.DriverID
}

// Emitter is what the order state machine needs from the bus.
type Emitter interface {
	Emit(evt Event)
}

type handler struct {
	fn    func(Event)
	types map[EventType]bool
}

// EventBus delivers events synchronously to subscribed handlers in
// subscription order.
type EventBus struct {
	mu       sync.RWMutex
	handlers []handler
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Emit stamps evt and calls every handler subscribed to its type.
func (b *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	hs := make([]handler, len(b.handlers))
	copy(hs, b.handlers)
	b.mu.RUnlock()

	for _, h := range hs {
		if len(h.types) == 0 || h.types[evt.Type] {
			h.fn(evt)
		}
	}
}

// SubscribeTypes registers fn for the given types, or for all events when none are given.
func (b *EventBus) SubscribeTypes(fn func(Event), types ...EventType) {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler{fn: fn, types: set})
	b.mu.Unlock()
}
