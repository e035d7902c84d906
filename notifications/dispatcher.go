package notifications

import (
	"sync"

	"order-tracking-service/events"

	"go.uber.org/zap"
)

// Dispatcher runs Notifier.HandleEvent on a background worker so hub
// publishes never run on the request goroutine. A single worker keeps events
// in publish order. Events that do not fit in the queue are dropped and logged.
type Dispatcher struct {
	notifier *Notifier
	queue    chan events.Event
	logger   *zap.Logger
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(notifier *Notifier, buffer int, logger *zap.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan events.Event, buffer),
		logger:   logger,
	}
}

// Handle is an EventBus handler. It never blocks.
func (d *Dispatcher) Handle(evt events.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.logger.Warn("Notification queue full, dropping event", zap.String("event_type", evt.Type.String()))
	}
}

// Start runs the worker until Close.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for evt := range d.queue {
			d.notifier.HandleEvent(evt)
		}
	}()
}

// Close delivers queued events and stops the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
