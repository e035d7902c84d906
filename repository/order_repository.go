package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/database"
	"order-tracking-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderTx is the write surface available while an order row is locked.
// Everything written through it commits or rolls back together.
type OrderTx interface {
	UpdateOrderStatus(order *models.Order) error
	AppendTrackingEvent(event *models.TrackingEvent) error
	UpdateDriverLocation(driverID string, location models.Coordinates, at time.Time) error
}

// LockedOrderFunc mutates a locked order. Returning an error rolls back the
// transaction and is passed to the caller unchanged when it is a domain error.
type LockedOrderFunc func(tx OrderTx, order *models.Order) error

// OrderRepository defines the storage operations of the order lifecycle.
type OrderRepository interface {
	InsertOrder(ctx context.Context, order *models.Order, initial *models.TrackingEvent) error
	WithOrderLock(ctx context.Context, id uuid.UUID, fn LockedOrderFunc) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error)
	SetEstimatedDeliveryTime(ctx context.Context, id uuid.UUID, eta time.Time) error
	SetDeliveryCoordinates(ctx context.Context, id uuid.UUID, coords models.Coordinates) error
	GetRestaurantCoordinates(ctx context.Context, restaurantID string) (*models.Coordinates, error)
	GetDriver(ctx context.Context, driverID string) (*models.Driver, error)
	Ping(ctx context.Context) error
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// OrderNumber formats the externally visible order number for a sequence value.
func OrderNumber(createdAt time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%06d", createdAt.UTC().Format("20060102"), seq)
}

// InsertOrder assigns the order number and stores the order together with its
// first tracking event.
func (r *GormOrderRepository) InsertOrder(ctx context.Context, order *models.Order, initial *models.TrackingEvent) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq int64
		if err := tx.Raw("SELECT nextval(?)", database.OrderNumberSequence).Scan(&seq).Error; err != nil {
			return fmt.Errorf("next order number: %w", err)
		}
		if order.CreatedAt.IsZero() {
			order.CreatedAt = time.Now().UTC()
		}
		order.OrderNumber = OrderNumber(order.CreatedAt, seq)

		if err := tx.Create(order).Error; err != nil {
			return err
		}
		initial.OrderID = order.ID
		return tx.Create(initial).Error
	})
	return apperrors.NewStorage("insert order", err)
}

// WithOrderLock loads the order with SELECT ... FOR UPDATE and runs fn inside
// the same transaction, so concurrent transitions of one order serialize.
func (r *GormOrderRepository) WithOrderLock(ctx context.Context, id uuid.UUID, fn LockedOrderFunc) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFound("order", id.String())
			}
			return err
		}
		return fn(&gormOrderTx{tx: tx}, &order)
	})
	return apperrors.NewStorage("update order status", err)
}

func (r *GormOrderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("order", id.String())
		}
		return nil, apperrors.NewStorage("get order", err)
	}
	return &order, nil
}

// ListOrders returns one page of orders matching filter, newest first, and
// the total number of matches.
func (r *GormOrderRepository) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.RestaurantID != "" {
		query = query.Where("restaurant_id = ?", filter.RestaurantID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.NewStorage("count orders", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.
		Offset(offset).
		Limit(filter.Limit).
		Order("created_at DESC").
		Find(&orders).Error; err != nil {
		return nil, 0, apperrors.NewStorage("list orders", err)
	}

	return orders, total, nil
}

func (r *GormOrderRepository) SetEstimatedDeliveryTime(ctx context.Context, id uuid.UUID, eta time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("estimated_delivery_time", eta).Error
	return apperrors.NewStorage("set estimated delivery time", err)
}

func (r *GormOrderRepository) SetDeliveryCoordinates(ctx context.Context, id uuid.UUID, coords models.Coordinates) error {
	err := r.db.WithContext(ctx).
		Model(&models.Order{ID: id}).
		Select("delivery_coordinates").
		Updates(&models.Order{DeliveryCoordinates: &coords}).Error
	return apperrors.NewStorage("set delivery coordinates", err)
}

// GetRestaurantCoordinates returns nil coordinates when the restaurant exists
// but has not been located.
func (r *GormOrderRepository) GetRestaurantCoordinates(ctx context.Context, restaurantID string) (*models.Coordinates, error) {
	var restaurant models.Restaurant
	if err := r.db.WithContext(ctx).First(&restaurant, "restaurant_id = ?", restaurantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("restaurant", restaurantID)
		}
		return nil, apperrors.NewStorage("get restaurant", err)
	}
	return restaurant.Coordinates, nil
}

// GetDriver returns the driver with its last known location.
func (r *GormOrderRepository) GetDriver(ctx context.Context, driverID string) (*models.Driver, error) {
	var driver models.Driver
	if err := r.db.WithContext(ctx).First(&driver, "driver_id = ?", driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("driver", driverID)
		}
		return nil, apperrors.NewStorage("get driver", err)
	}
	return &driver, nil
}

func (r *GormOrderRepository) Ping(ctx context.Context) error {
	return database.Ping(ctx, r.db)
}

type gormOrderTx struct {
	tx *gorm.DB
}

func (t *gormOrderTx) UpdateOrderStatus(order *models.Order) error {
	return t.tx.Model(order).
		Select("status", "driver_id", "updated_at").
		Updates(order).Error
}

func (t *gormOrderTx) AppendTrackingEvent(event *models.TrackingEvent) error {
	return t.tx.Create(event).Error
}

// UpdateDriverLocation upserts the driver's last known position.
func (t *gormOrderTx) UpdateDriverLocation(driverID string, location models.Coordinates, at time.Time) error {
	return t.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "driver_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_location", "updated_at"}),
	}).Create(&models.Driver{ID: driverID, CurrentLocation: &location, UpdatedAt: at}).Error
}
