package models

import (
	"time"

	"github.com/google/uuid"
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OrderItem is one line of an order. Items are stored inline on the order.
type OrderItem struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type Order struct {
	ID                    uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"order_id"`
	OrderNumber           string       `gorm:"uniqueIndex;not null" json:"order_number"`
	UserID                string       `gorm:"not null;index" json:"user_id"`
	RestaurantID          string       `gorm:"not null;index" json:"restaurant_id"`
	DriverID              *string      `gorm:"index" json:"driver_id"`
	Status                OrderStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	Items                 []OrderItem  `gorm:"serializer:json;type:jsonb;not null" json:"items"`
	Subtotal              float64      `gorm:"type:numeric(10,2);not null" json:"subtotal"`
	TaxAmount             float64      `gorm:"type:numeric(10,2);not null" json:"tax_amount"`
	DeliveryFee           float64      `gorm:"type:numeric(10,2);not null" json:"delivery_fee"`
	TotalAmount           float64      `gorm:"type:numeric(10,2);not null" json:"total_amount"`
	DeliveryAddress       string       `gorm:"not null" json:"delivery_address"`
	DeliveryCoordinates   *Coordinates `gorm:"serializer:json;type:jsonb" json:"delivery_coordinates"`
	SpecialInstructions   *string      `json:"special_instructions"`
	EstimatedDeliveryTime *time.Time   `json:"estimated_delivery_time"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// OrderDetail is an order together with its tracking history, newest first.
type OrderDetail struct {
	Order
	TrackingHistory []TrackingEvent `json:"tracking_history"`
}

// OrderFilter narrows an order listing. Empty fields match everything.
type OrderFilter struct {
	Status       OrderStatus
	UserID       string
	RestaurantID string
	Page         int
	Limit        int
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// CreateOrderRequest is the input of order creation, shared by REST and the
// real-time gateway.
type CreateOrderRequest struct {
	UserID              string       `json:"user_id"`
	RestaurantID        string       `json:"restaurant_id"`
	Items               []OrderItem  `json:"items"`
	DeliveryAddress     string       `json:"delivery_address"`
	DeliveryCoordinates *Coordinates `json:"delivery_coordinates,omitempty"`
	SpecialInstructions *string      `json:"special_instructions,omitempty"`
}

// UpdateStatusRequest is the input of a status transition.
type UpdateStatusRequest struct {
	Status      string       `json:"status"`
	DriverID    *string      `json:"driver_id,omitempty"`
	Location    *Coordinates `json:"location,omitempty"`
	Description *string      `json:"description,omitempty"`
}

// DriverView is the driver section of a tracking view.
type DriverView struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Phone    string       `json:"phone,omitempty"`
	Location *Coordinates `json:"location"`
}

// TrackingView is the read model returned by order tracking.
type TrackingView struct {
	OrderID               uuid.UUID       `json:"order_id"`
	OrderNumber           string          `json:"order_number"`
	Status                OrderStatus     `json:"status"`
	EstimatedDeliveryTime *time.Time      `json:"estimated_delivery_time"`
	CurrentETA            *ETAResult      `json:"current_eta"`
	DeliveryAddress       string          `json:"delivery_address"`
	DeliveryCoordinates   *Coordinates    `json:"delivery_coordinates"`
	Driver                *DriverView     `json:"driver"`
	TrackingHistory       []TrackingEvent `json:"tracking_history"`
}
