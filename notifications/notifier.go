package notifications

import (
	"context"
	"time"

	"order-tracking-service/events"
	"order-tracking-service/models"

	"go.uber.org/zap"
)

// Message types carried in the "type" field of every channel message.
const (
	TypeNewOrder       = "new_order"
	TypeOrderUpdate    = "order_update"
	TypeNewAssignment  = "new_assignment"
	TypeLocationUpdate = "location_update"
	TypeOrderCreated   = "order_created"
)

// Publisher is the publish side of Hub.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) bool
}

// OrderUpdate is the payload users receive when their order changes.
type OrderUpdate struct {
	OrderID               string              `json:"order_id"`
	OrderNumber           string              `json:"order_number"`
	Status                models.OrderStatus  `json:"status"`
	PreviousStatus        models.OrderStatus  `json:"previous_status,omitempty"`
	DriverID              *string             `json:"driver_id,omitempty"`
	Location              *models.Coordinates `json:"location,omitempty"`
	Description           *string             `json:"description,omitempty"`
	EstimatedDeliveryTime *time.Time          `json:"estimated_delivery_time,omitempty"`
}

// Assignment is the payload a driver receives when an order is assigned to them.
type Assignment struct {
	OrderID             string              `json:"order_id"`
	OrderNumber         string              `json:"order_number"`
	RestaurantID        string              `json:"restaurant_id"`
	DeliveryAddress     string              `json:"delivery_address"`
	DeliveryCoordinates *models.Coordinates `json:"delivery_coordinates"`
}

// Notifier binds message shapes to channels. It knows channel names, not
// transports.
type Notifier struct {
	hub     Publisher
	logger  *zap.Logger
	timeout time.Duration
}

func NewNotifier(hub Publisher, logger *zap.Logger) *Notifier {
	return &Notifier{hub: hub, logger: logger, timeout: 2 * time.Second}
}

func message(typ, key string, payload interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":      typ,
		key:         payload,
		"timestamp": time.Now().UTC(),
	}
}

// NotifyRestaurant tells the restaurant about a new order.
func (n *Notifier) NotifyRestaurant(ctx context.Context, order models.Order) bool {
	return n.hub.Publish(ctx, RestaurantChannel(order.RestaurantID), message(TypeNewOrder, "order", order))
}

// NotifyUser sends a status update to the customer.
func (n *Notifier) NotifyUser(ctx context.Context, userID string, update OrderUpdate) bool {
	return n.hub.Publish(ctx, UserChannel(userID), message(TypeOrderUpdate, "update", update))
}

// NotifyDriver sends an assignment to the driver.
func (n *Notifier) NotifyDriver(ctx context.Context, driverID string, assignment Assignment) bool {
	return n.hub.Publish(ctx, DriverChannel(driverID), message(TypeNewAssignment, "assignment", assignment))
}

// PublishOrderUpdate pushes the order snapshot to everyone tracking it.
func (n *Notifier) PublishOrderUpdate(ctx context.Context, order models.Order) bool {
	return n.hub.Publish(ctx, OrderChannel(order.ID.String()), message(TypeOrderUpdate, "order", order))
}

// PublishLocation rebroadcasts a location ping to everyone tracking the order.
// It does not touch the tracking log.
func (n *Notifier) PublishLocation(ctx context.Context, orderID string, location models.Coordinates) bool {
	return n.hub.Publish(ctx, OrderChannel(orderID), map[string]interface{}{
		"type":      TypeLocationUpdate,
		"orderId":   orderID,
		"location":  location,
		"timestamp": time.Now().UTC(),
	})
}

// BroadcastSystem publishes to every connected session.
func (n *Notifier) BroadcastSystem(ctx context.Context, typ string, data interface{}) bool {
	return n.hub.Publish(ctx, SystemChannel, message(typ, "data", data))
}

// HandleEvent turns a domain event into channel messages. Dispatcher calls it
// from its worker.
func (n *Notifier) HandleEvent(evt events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	switch p := evt.Payload.(type) {
	case events.OrderCreatedEvent:
		n.check(n.NotifyRestaurant(ctx, p.Order), "restaurant", p.Order)
		n.check(n.BroadcastSystem(ctx, TypeOrderCreated, p.Order), "system", p.Order)

	case events.OrderStatusChangedEvent:
		update := OrderUpdate{
			OrderID:               p.Order.ID.String(),
			OrderNumber:           p.Order.OrderNumber,
			Status:                p.Order.Status,
			PreviousStatus:        p.PreviousStatus,
			DriverID:              p.Order.DriverID,
			Location:              p.Tracking.Location,
			Description:           p.Tracking.Description,
			EstimatedDeliveryTime: p.Order.EstimatedDeliveryTime,
		}
		n.check(n.NotifyUser(ctx, p.Order.UserID, update), "user", p.Order)
		n.check(n.PublishOrderUpdate(ctx, p.Order), "order", p.Order)

		if p.DriverAssigned() {
			n.check(n.NotifyDriver(ctx, *p.Order.DriverID, Assignment{
				OrderID:             p.Order.ID.String(),
				OrderNumber:         p.Order.OrderNumber,
				RestaurantID:        p.Order.RestaurantID,
				DeliveryAddress:     p.Order.DeliveryAddress,
				DeliveryCoordinates: p.Order.DeliveryCoordinates,
			}), "driver", p.Order)
		}
	}
}

func (n *Notifier) check(ok bool, target string, order models.Order) {
	if !ok {
		n.logger.Warn("Notification not delivered",
			zap.String("target", target),
			zap.String("order_id", order.ID.String()),
		)
	}
}
