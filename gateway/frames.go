package gateway

import (
	"encoding/json"

	"order-tracking-service/notifications"
)

// Inbound commands.
const (
	cmdTrackOrder     = "trackOrder"
	cmdUpdateLocation = "updateLocation"
	cmdNewOrder       = "newOrder"
	cmdSubscribe      = "subscribe"
	cmdUnsubscribe    = "unsubscribe"
)

// Outbound pushes.
const (
	EventOrderUpdate    = "orderUpdate"
	EventOrderCreated   = "orderCreated"
	EventOrderConfirmed = "orderConfirmed"
	EventLocationUpdate = "locationUpdate"
	EventOrderNotFound  = "orderNotFound"
	EventNewOrder       = "newOrder"
	EventNewAssignment  = "newAssignment"
	EventSubscribed     = "subscribed"
	EventUnsubscribed   = "unsubscribed"
	EventNotification   = "notification"
	EventError          = "error"
)

// pushNames maps hub message types onto push names.
var pushNames = map[string]string{
	notifications.TypeOrderUpdate:    EventOrderUpdate,
	notifications.TypeNewOrder:       EventNewOrder,
	notifications.TypeOrderCreated:   EventOrderCreated,
	notifications.TypeLocationUpdate: EventLocationUpdate,
	notifications.TypeNewAssignment:  EventNewAssignment,
}

// Frame is the envelope of every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type locationCommand struct {
	OrderID  string               `json:"orderId"`
	Location *locationCoordinates `json:"location"`
}

type locationCoordinates struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type channelCommand struct {
	Channel string `json:"channel"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type notFoundPayload struct {
	OrderID string `json:"orderId"`
}

// hubFrame wraps a hub message for the socket, naming it after its type.
func hubFrame(body []byte) ([]byte, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, err
	}
	name, ok := pushNames[head.Type]
	if !ok {
		name = EventNotification
	}
	return json.Marshal(Frame{Event: name, Data: body})
}
