package repository

import (
	"context"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackingRepository reads the append-only order history. Writes go through
// OrderRepository so they share the order's transaction.
type TrackingRepository interface {
	ListTrackingEvents(ctx context.Context, orderID uuid.UUID, ascending bool) ([]models.TrackingEvent, error)
}

type GormTrackingRepository struct {
	db *gorm.DB
}

func NewGormTrackingRepository(db *gorm.DB) TrackingRepository {
	return &GormTrackingRepository{db: db}
}

// ListTrackingEvents returns the history of an order ordered by timestamp,
// with the insertion id breaking ties.
func (r *GormTrackingRepository) ListTrackingEvents(ctx context.Context, orderID uuid.UUID, ascending bool) ([]models.TrackingEvent, error) {
	order := "timestamp DESC, id DESC"
	if ascending {
		order = "timestamp ASC, id ASC"
	}

	events := []models.TrackingEvent{}
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order(order).
		Find(&events).Error; err != nil {
		return nil, apperrors.NewStorage("list tracking events", err)
	}
	return events, nil
}
