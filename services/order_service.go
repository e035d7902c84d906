package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/events"
	"order-tracking-service/metrics"
	"order-tracking-service/models"
	"order-tracking-service/providers"
	"order-tracking-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	descriptionPlaced    = "Order placed successfully"
	descriptionCancelled = "Order cancelled by user"

	defaultPageLimit = 10
	maxPageLimit     = 100
)

// OrderService is the order lifecycle: creation, validated status
// transitions and the tracking read model.
type OrderService interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, req models.UpdateStatusRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetTracking(ctx context.Context, orderID string) (*models.TrackingView, error)
	GetOrder(ctx context.Context, orderID string) (*models.OrderDetail, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, models.Pagination, error)
	// Shutdown waits for background ETA work started by earlier calls.
	Shutdown(ctx context.Context) error
}

type orderServiceImpl struct {
	orders     repository.OrderRepository
	tracking   repository.TrackingRepository
	eta        providers.ETAProvider
	geocoder   providers.Geocoder
	emitter    events.Emitter
	etaTimeout time.Duration
	logger     *zap.Logger

	now        func() time.Time
	background sync.WaitGroup
}

// NewOrderService creates a new OrderService. etaTimeout bounds every
// background estimate and the live estimate of GetTracking.
func NewOrderService(
	orders repository.OrderRepository,
	tracking repository.TrackingRepository,
	eta providers.ETAProvider,
	geocoder providers.Geocoder,
	emitter events.Emitter,
	etaTimeout time.Duration,
	logger *zap.Logger,
) OrderService {
	if etaTimeout <= 0 {
		etaTimeout = 5 * time.Second
	}
	return &orderServiceImpl{
		orders:     orders,
		tracking:   tracking,
		eta:        eta,
		geocoder:   geocoder,
		emitter:    emitter,
		etaTimeout: etaTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

func parseOrderID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperrors.NewNotFound("order", raw)
	}
	return id, nil
}

func validateCreate(req models.CreateOrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return apperrors.NewValidation("user_id", "is required")
	}
	if strings.TrimSpace(req.RestaurantID) == "" {
		return apperrors.NewValidation("restaurant_id", "is required")
	}
	if len(req.Items) == 0 {
		return apperrors.NewValidation("items", "must contain at least one item")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" {
			return apperrors.NewValidation(fmt.Sprintf("items[%d].name", i), "is required")
		}
		if item.Quantity <= 0 {
			return apperrors.NewValidation(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
		if item.Quantity > models.MaxItemQuantity {
			return apperrors.NewValidation(fmt.Sprintf("items[%d].quantity", i), fmt.Sprintf("must not exceed %d", models.MaxItemQuantity))
		}
		if item.UnitPrice < 0 || math.IsNaN(item.UnitPrice) || math.IsInf(item.UnitPrice, 0) {
			return apperrors.NewValidation(fmt.Sprintf("items[%d].price", i), "must be a non-negative amount")
		}
		if item.UnitPrice > models.MaxUnitPrice {
			return apperrors.NewValidation(fmt.Sprintf("items[%d].price", i), fmt.Sprintf("must not exceed %.2f", models.MaxUnitPrice))
		}
	}
	if !models.WithinLimits(req.Items) {
		return apperrors.NewValidation("items", "order total exceeds the maximum amount")
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return apperrors.NewValidation("delivery_address", "is required")
	}
	return nil
}

// CreateOrder prices and stores a new pending order with its first tracking
// event, then estimates delivery in the background.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:                  uuid.New(),
		UserID:              req.UserID,
		RestaurantID:        req.RestaurantID,
		Status:              models.StatusPending,
		Items:               req.Items,
		DeliveryAddress:     strings.TrimSpace(req.DeliveryAddress),
		DeliveryCoordinates: req.DeliveryCoordinates,
		SpecialInstructions: req.SpecialInstructions,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	models.ComputeTotals(req.Items).Apply(order)

	description := descriptionPlaced
	initial := &models.TrackingEvent{
		Status:      models.StatusPending,
		Description: &description,
		Timestamp:   now,
	}

	if err := s.orders.InsertOrder(ctx, order, initial); err != nil {
		s.logger.Error("Failed to create order", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.Float64("total_amount", order.TotalAmount),
	)

	s.emitter.Emit(events.Event{Type: events.EventOrderCreated, Payload: events.OrderCreatedEvent{Order: *order}})

	created := *order
	s.goBackground(func(ctx context.Context) { s.estimateDelivery(ctx, created) })

	return order, nil
}

// UpdateStatus applies a transition under the order's row lock. The status
// change, the optional driver location and the tracking event commit together.
func (s *orderServiceImpl) UpdateStatus(ctx context.Context, orderID string, req models.UpdateStatusRequest) (*models.Order, error) {
	if strings.TrimSpace(req.Status) == "" {
		return nil, apperrors.NewValidation("status", "Status is required")
	}
	next, err := models.ParseStatus(req.Status)
	if err != nil {
		return nil, apperrors.NewValidation("status", err.Error())
	}
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	driverID := req.DriverID
	if driverID != nil && strings.TrimSpace(*driverID) == "" {
		driverID = nil
	}

	var (
		updated        models.Order
		previous       models.OrderStatus
		previousDriver *string
		event          models.TrackingEvent
	)

	err = s.orders.WithOrderLock(ctx, id, func(tx repository.OrderTx, order *models.Order) error {
		if !order.Status.CanTransitionTo(next) {
			return &apperrors.InvalidTransitionError{
				OrderID: id.String(),
				From:    string(order.Status),
				To:      string(next),
			}
		}

		previous = order.Status
		previousDriver = order.DriverID

		// Tracking timestamps never go backwards, even under clock skew.
		ts := s.now().UTC()
		if order.UpdatedAt.After(ts) {
			ts = order.UpdatedAt
		}

		order.Status = next
		order.UpdatedAt = ts
		if driverID != nil {
			d := *driverID
			order.DriverID = &d
		}
		if err := tx.UpdateOrderStatus(order); err != nil {
			return err
		}

		if driverID != nil && req.Location != nil {
			if err := tx.UpdateDriverLocation(*driverID, *req.Location, ts); err != nil {
				return err
			}
		}

		event = models.TrackingEvent{
			OrderID:     order.ID,
			Status:      next,
			Location:    req.Location,
			Description: req.Description,
			Timestamp:   ts,
		}
		if err := tx.AppendTrackingEvent(&event); err != nil {
			return err
		}

		updated = *order
		return nil
	})
	if err != nil {
		var it *apperrors.InvalidTransitionError
		if errors.As(err, &it) {
			metrics.OrderTransitionRejectionsTotal.Inc()
			s.logger.Info("Rejected status transition",
				zap.String("order_id", orderID),
				zap.String("from", it.From),
				zap.String("to", it.To),
			)
		} else {
			s.logger.Error("Failed to update order status", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil, err
	}

	metrics.OrderTransitionsTotal.WithLabelValues(string(previous), string(next)).Inc()
	s.logger.Info("Order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)

	s.emitter.Emit(events.Event{Type: events.EventOrderStatusChanged, Payload: events.OrderStatusChangedEvent{
		Order:            updated,
		PreviousStatus:   previous,
		PreviousDriverID: previousDriver,
		Tracking:         event,
	}})

	// A pickup with a known courier position refreshes the delivery estimate.
	if next == models.StatusPickedUp && req.Location != nil && updated.DeliveryCoordinates != nil {
		origin, order := *req.Location, updated
		s.goBackground(func(ctx context.Context) { s.refreshEstimate(ctx, order, origin) })
	}

	return &updated, nil
}

func (s *orderServiceImpl) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	description := descriptionCancelled
	return s.UpdateStatus(ctx, orderID, models.UpdateStatusRequest{
		Status:      string(models.StatusCancelled),
		Description: &description,
	})
}

// GetTracking assembles the tracking view. The live ETA is advisory: when it
// fails CurrentETA is nil and every other field is still returned.
func (s *orderServiceImpl) GetTracking(ctx context.Context, orderID string) (*models.TrackingView, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.tracking.ListTrackingEvents(ctx, id, true)
	if err != nil {
		return nil, err
	}

	view := &models.TrackingView{
		OrderID:               order.ID,
		OrderNumber:           order.OrderNumber,
		Status:                order.Status,
		EstimatedDeliveryTime: order.EstimatedDeliveryTime,
		DeliveryAddress:       order.DeliveryAddress,
		DeliveryCoordinates:   order.DeliveryCoordinates,
		TrackingHistory:       history,
	}

	if order.DriverID != nil {
		driver, err := s.orders.GetDriver(ctx, *order.DriverID)
		var nf *apperrors.NotFoundError
		switch {
		case errors.As(err, &nf):
			view.Driver = &models.DriverView{ID: *order.DriverID}
		case err != nil:
			return nil, err
		default:
			view.Driver = &models.DriverView{
				ID:       driver.ID,
				Name:     driver.FullName(),
				Phone:    driver.Phone,
				Location: driver.CurrentLocation,
			}
		}
	}

	if view.Driver != nil && view.Driver.Location != nil && order.DeliveryCoordinates != nil {
		etaCtx, cancel := context.WithTimeout(ctx, s.etaTimeout)
		eta := s.eta.Estimate(etaCtx, *view.Driver.Location, *order.DeliveryCoordinates, models.ModeDriving)
		cancel()
		if !eta.Failed {
			view.CurrentETA = &eta
		} else {
			s.logger.Warn("Failed to calculate current ETA",
				zap.String("order_id", orderID),
				zap.String("reason", eta.Reason),
			)
		}
	}

	return view, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID string) (*models.OrderDetail, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.tracking.ListTrackingEvents(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return &models.OrderDetail{Order: *order, TrackingHistory: history}, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, models.Pagination, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, models.Pagination{}, apperrors.NewValidation("status", fmt.Sprintf("unknown order status %q", filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}

	orders, total, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	if orders == nil {
		orders = []models.Order{}
	}

	pages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	return orders, models.Pagination{Page: filter.Page, Limit: filter.Limit, Total: total, Pages: pages}, nil
}

func (s *orderServiceImpl) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// goBackground runs fn detached from the request with its own deadline.
func (s *orderServiceImpl) goBackground(fn func(ctx context.Context)) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*s.etaTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// estimateDelivery geocodes the address when needed, then stores the
// restaurant-to-customer estimate on the order. Every failure is logged and
// dropped.
func (s *orderServiceImpl) estimateDelivery(ctx context.Context, order models.Order) {
	log := s.logger.With(zap.String("order_id", order.ID.String()))

	dest := order.DeliveryCoordinates
	if dest == nil {
		geo := s.geocoder.Geocode(ctx, order.DeliveryAddress)
		if geo.Failed {
			log.Warn("Failed to geocode delivery address", zap.String("reason", geo.Reason))
			return
		}
		if err := s.orders.SetDeliveryCoordinates(ctx, order.ID, geo.Coordinates); err != nil {
			log.Warn("Failed to store delivery coordinates", zap.Error(err))
			return
		}
		dest = &geo.Coordinates
	}

	origin, err := s.orders.GetRestaurantCoordinates(ctx, order.RestaurantID)
	if err != nil || origin == nil {
		log.Warn("Restaurant coordinates unavailable, skipping ETA",
			zap.String("restaurant_id", order.RestaurantID),
			zap.Error(err),
		)
		return
	}

	s.storeEstimate(ctx, order, *origin, *dest)
}

func (s *orderServiceImpl) refreshEstimate(ctx context.Context, order models.Order, origin models.Coordinates) {
	s.storeEstimate(ctx, order, origin, *order.DeliveryCoordinates)
}

func (s *orderServiceImpl) storeEstimate(ctx context.Context, order models.Order, origin, dest models.Coordinates) {
	etaCtx, cancel := context.WithTimeout(ctx, s.etaTimeout)
	eta := s.eta.Estimate(etaCtx, origin, dest, models.ModeDriving)
	cancel()
	if eta.Failed {
		s.logger.Warn("Failed to calculate ETA",
			zap.String("order_id", order.ID.String()),
			zap.String("reason", eta.Reason),
		)
		return
	}

	arrival := eta.ArrivalFrom(s.now().UTC())
	if err := s.orders.SetEstimatedDeliveryTime(ctx, order.ID, arrival); err != nil {
		s.logger.Warn("Failed to store estimated delivery time", zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	s.logger.Debug("Estimated delivery time updated",
		zap.String("order_id", order.ID.String()),
		zap.Time("estimated_delivery_time", arrival),
		zap.String("duration", eta.DurationText),
	)
}
