package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingEvent is one immutable entry of an order's status history.
type TrackingEvent struct {
	ID          uint         `gorm:"primaryKey" json:"tracking_id"`
	OrderID     uuid.UUID    `gorm:"type:uuid;not null;index:idx_order_tracking_order_ts,priority:1" json:"order_id"`
	Status      OrderStatus  `gorm:"type:varchar(20);not null" json:"status"`
	Location    *Coordinates `gorm:"serializer:json;type:jsonb" json:"location"`
	Description *string      `json:"description"`
	Timestamp   time.Time    `gorm:"not null;index:idx_order_tracking_order_ts,priority:2" json:"timestamp"`
}

func (TrackingEvent) TableName() string { return "order_tracking" }

// Restaurant is reference data used to compute the initial delivery estimate.
type Restaurant struct {
	ID          string       `gorm:"column:restaurant_id;primaryKey" json:"restaurant_id"`
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	Coordinates *Coordinates `gorm:"serializer:json;type:jsonb" json:"coordinates"`
}

// Driver is a courier. CurrentLocation is the last reported position.
type Driver struct {
	ID              string       `gorm:"column:driver_id;primaryKey" json:"driver_id"`
	FirstName       string       `json:"first_name"`
	LastName        string       `json:"last_name"`
	Phone           string       `json:"phone"`
	CurrentLocation *Coordinates `gorm:"serializer:json;type:jsonb" json:"current_location"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// FullName joins the driver's first and last name.
func (d Driver) FullName() string {
	if d.LastName == "" {
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}
