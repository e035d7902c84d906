package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/events"
	"order-tracking-service/models"
	"order-tracking-service/providers"
	"order-tracking-service/repository"
	"order-tracking-service/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- In-memory repository ----

type memoryStore struct {
	mu          sync.Mutex
	locks       map[uuid.UUID]*sync.Mutex
	orders      map[uuid.UUID]models.Order
	tracking    map[uuid.UUID][]models.TrackingEvent
	restaurants map[string]models.Coordinates
	drivers     map[string]models.Driver
	seq         int64
	nextID      uint

	failAppend bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		locks:       make(map[uuid.UUID]*sync.Mutex),
		orders:      make(map[uuid.UUID]models.Order),
		tracking:    make(map[uuid.UUID][]models.TrackingEvent),
		restaurants: make(map[string]models.Coordinates),
		drivers:     make(map[string]models.Driver),
	}
}

func (m *memoryStore) InsertOrder(_ context.Context, order *models.Order, initial *models.TrackingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	order.OrderNumber = repository.OrderNumber(order.CreatedAt, m.seq)
	initial.OrderID = order.ID
	m.nextID++
	initial.ID = m.nextID
	m.orders[order.ID] = *order
	m.tracking[order.ID] = []models.TrackingEvent{*initial}
	m.locks[order.ID] = &sync.Mutex{}
	return nil
}

type memoryTx struct {
	order   *models.Order
	events  []models.TrackingEvent
	drivers map[string]models.Driver
	fail    bool
}

func (t *memoryTx) UpdateOrderStatus(order *models.Order) error {
	cp := *order
	t.order = &cp
	return nil
}

func (t *memoryTx) AppendTrackingEvent(event *models.TrackingEvent) error {
	if t.fail {
		return errors.New("disk full")
	}
	t.events = append(t.events, *event)
	return nil
}

func (t *memoryTx) UpdateDriverLocation(driverID string, location models.Coordinates, at time.Time) error {
	d := t.drivers[driverID]
	d.ID = driverID
	d.CurrentLocation = &location
	d.UpdatedAt = at
	t.drivers[driverID] = d
	return nil
}

// WithOrderLock buffers writes and applies them only when fn succeeds.
func (m *memoryStore) WithOrderLock(_ context.Context, id uuid.UUID, fn repository.LockedOrderFunc) error {
	m.mu.Lock()
	lock, ok := m.locks[id]
	m.mu.Unlock()
	if !ok {
		return apperrors.NewNotFound("order", id.String())
	}
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	order := m.orders[id]
	fail := m.failAppend
	m.mu.Unlock()

	tx := &memoryTx{drivers: make(map[string]models.Driver), fail: fail}
	if err := fn(tx, &order); err != nil {
		return apperrors.NewStorage("update order status", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.order != nil {
		m.orders[id] = *tx.order
	}
	for _, ev := range tx.events {
		m.nextID++
		ev.ID = m.nextID
		m.tracking[id] = append(m.tracking[id], ev)
	}
	for k, d := range tx.drivers {
		existing := m.drivers[k]
		existing.ID = d.ID
		existing.CurrentLocation = d.CurrentLocation
		m.drivers[k] = existing
	}
	return nil
}

func (m *memoryStore) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperrors.NewNotFound("order", id.String())
	}
	return &o, nil
}

func (m *memoryStore) ListOrders(_ context.Context, f models.OrderFilter) ([]models.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

func (m *memoryStore) SetEstimatedDeliveryTime(_ context.Context, id uuid.UUID, eta time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.EstimatedDeliveryTime = &eta
	m.orders[id] = o
	return nil
}

func (m *memoryStore) SetDeliveryCoordinates(_ context.Context, id uuid.UUID, c models.Coordinates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.DeliveryCoordinates = &c
	m.orders[id] = o
	return nil
}

func (m *memoryStore) GetRestaurantCoordinates(_ context.Context, id string) (*models.Coordinates, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.restaurants[id]
	if !ok {
		return nil, apperrors.NewNotFound("restaurant", id)
	}
	return &c, nil
}

func (m *memoryStore) GetDriver(_ context.Context, id string) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return nil, apperrors.NewNotFound("driver", id)
	}
	return &d, nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) ListTrackingEvents(_ context.Context, id uuid.UUID, ascending bool) ([]models.TrackingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.TrackingEvent{}, m.tracking[id]...)
	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memoryStore) history(id uuid.UUID) []models.TrackingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TrackingEvent{}, m.tracking[id]...)
}

func (m *memoryStore) order(id uuid.UUID) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

// ---- Provider and emitter fakes ----

type mockETA struct {
	result models.ETAResult
	block  bool
	calls  int
	mu     sync.Mutex
}

func (m *mockETA) Estimate(ctx context.Context, _, _ models.Coordinates, _ models.TravelMode) models.ETAResult {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return models.FailedETA("request timed out after %s", "50ms")
	}
	return m.result
}

type mockGeocoder struct {
	result providers.GeocodeResult
}

func (m *mockGeocoder) Geocode(context.Context, string) providers.GeocodeResult { return m.result }

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store    *memoryStore
	eta      *mockETA
	geocoder *mockGeocoder
	emitter  *recordingEmitter
	svc      services.OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemoryStore(),
		eta:      &mockETA{result: models.NewETA(1200, "20 mins", 6000, "6 km", models.ModeDriving)},
		geocoder: &mockGeocoder{result: providers.GeocodeResult{Failed: true, Reason: "not configured"}},
		emitter:  &recordingEmitter{},
	}
	f.svc = services.NewOrderService(f.store, f.store, f.eta, f.geocoder, f.emitter, 50*time.Millisecond, zap.NewNop())
	return f
}

func pizzaRequest() models.CreateOrderRequest {
	return models.CreateOrderRequest{
		UserID:          "user-1",
		RestaurantID:    "rest-1",
		Items:           []models.OrderItem{{Name: "Pizza", UnitPrice: 15.99, Quantity: 1}},
		DeliveryAddress: "123 Main St",
	}
}

func (f *fixture) create(t *testing.T) *models.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), pizzaRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))
	return o
}

func (f *fixture) assertStatusMatchesHistory(t *testing.T, id uuid.UUID) {
	t.Helper()
	h := f.store.history(id)
	require.NotEmpty(t, h)
	assert.Equal(t, f.store.order(id).Status, h[len(h)-1].Status)
	for i := 1; i < len(h); i++ {
		assert.False(t, h[i].Timestamp.Before(h[i-1].Timestamp), "tracking timestamps must not decrease")
	}
}

// ---- Tests ----

func TestCreateOrder_PizzaScenario(t *testing.T) {
	f := newFixture(t)

	o := f.create(t)

	assert.Equal(t, 15.99, o.Subtotal)
	assert.Equal(t, 1.28, o.TaxAmount)
	assert.Equal(t, 2.99, o.DeliveryFee)
	assert.Equal(t, 20.26, o.TotalAmount)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.NotEmpty(t, o.OrderNumber)

	h := f.store.history(o.ID)
	require.Len(t, h, 1)
	assert.Equal(t, models.StatusPending, h[0].Status)
	assert.Equal(t, "Order placed successfully", *h[0].Description)
	assert.Equal(t, []events.EventType{events.EventOrderCreated}, f.emitter.types())
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)

	cases := map[string]func(r *models.CreateOrderRequest){
		"no items":      func(r *models.CreateOrderRequest) { r.Items = nil },
		"zero quantity": func(r *models.CreateOrderRequest) { r.Items[0].Quantity = 0 },
		"blank address": func(r *models.CreateOrderRequest) { r.DeliveryAddress = "   " },
		"no user":       func(r *models.CreateOrderRequest) { r.UserID = "" },
		"no restaurant": func(r *models.CreateOrderRequest) { r.RestaurantID = "" },
		"negative":      func(r *models.CreateOrderRequest) { r.Items[0].UnitPrice = -1 },
		"huge quantity": func(r *models.CreateOrderRequest) { r.Items[0].Quantity = 1 << 40 },
		"huge price":    func(r *models.CreateOrderRequest) { r.Items[0].UnitPrice = 1e12 },
		"total too large": func(r *models.CreateOrderRequest) {
			r.Items = nil
			for i := 0; i < 10; i++ {
				r.Items = append(r.Items, models.OrderItem{Name: "Banquet", UnitPrice: models.MaxUnitPrice, Quantity: models.MaxItemQuantity})
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := pizzaRequest()
			mutate(&req)
			o, err := f.svc.CreateOrder(context.Background(), req)
			assert.Nil(t, o)
			var ve *apperrors.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.emitter.types())
}

func TestCreateOrder_SetsEstimatedDeliveryInBackground(t *testing.T) {
	f := newFixture(t)
	f.store.restaurants["rest-1"] = models.Coordinates{Lat: 40.71, Lng: -74.0}

	req := pizzaRequest()
	req.DeliveryCoordinates = &models.Coordinates{Lat: 40.73, Lng: -73.93}
	o, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	stored := f.store.order(o.ID)
	require.NotNil(t, stored.EstimatedDeliveryTime)
	assert.WithinDuration(t, time.Now().Add(20*time.Minute), *stored.EstimatedDeliveryTime, time.Minute)
}

func TestCreateOrder_GeocodesMissingCoordinates(t *testing.T) {
	f := newFixture(t)
	f.store.restaurants["rest-1"] = models.Coordinates{Lat: 40.71, Lng: -74.0}
	f.geocoder.result = providers.GeocodeResult{Coordinates: models.Coordinates{Lat: 40.7, Lng: -73.9}}

	o := f.create(t)

	stored := f.store.order(o.ID)
	require.NotNil(t, stored.DeliveryCoordinates)
	assert.Equal(t, 40.7, stored.DeliveryCoordinates.Lat)
	assert.NotNil(t, stored.EstimatedDeliveryTime)
}

func TestCreateOrder_ETAFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	f.store.restaurants["rest-1"] = models.Coordinates{Lat: 40.71, Lng: -74.0}
	f.eta.result = models.FailedETA("Google Maps API key not configured")

	req := pizzaRequest()
	req.DeliveryCoordinates = &models.Coordinates{Lat: 40.73, Lng: -73.93}
	o, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))

	assert.Equal(t, 20.26, o.TotalAmount)
	assert.Nil(t, f.store.order(o.ID).EstimatedDeliveryTime)
}

func TestUpdateStatus_ForwardThenBackwardRejected(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	id := o.ID.String()

	updated, err := f.svc.UpdateStatus(context.Background(), id, models.UpdateStatusRequest{Status: "preparing"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, updated.Status)
	assert.Len(t, f.store.history(o.ID), 2)

	_, err = f.svc.UpdateStatus(context.Background(), id, models.UpdateStatusRequest{Status: "pending"})
	var it *apperrors.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, "preparing", it.From)
	assert.Equal(t, "pending", it.To)

	assert.Len(t, f.store.history(o.ID), 2)
	f.assertStatusMatchesHistory(t, o.ID)
	assert.Equal(t, []events.EventType{events.EventOrderCreated, events.EventOrderStatusChanged}, f.emitter.types())
}

func TestUpdateStatus_TerminalStatesRejectEverything(t *testing.T) {
	for _, terminal := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		f := newFixture(t)
		o := f.create(t)
		_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{Status: string(terminal)})
		require.NoError(t, err)

		for _, next := range models.AllStatuses() {
			_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{Status: string(next)})
			var it *apperrors.InvalidTransitionError
			assert.ErrorAs(t, err, &it, "%s -> %s", terminal, next)
		}
		assert.Len(t, f.store.history(o.ID), 2)
		f.assertStatusMatchesHistory(t, o.ID)
	}
}

func TestUpdateStatus_AssignsDriverAndStoresLocation(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	driver := "driver-7"
	loc := &models.Coordinates{Lat: 40.72, Lng: -73.99}
	desc := "Courier on the way"

	updated, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{
		Status: "picked_up", DriverID: &driver, Location: loc, Description: &desc,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.DriverID)
	assert.Equal(t, "driver-7", *updated.DriverID)

	h := f.store.history(o.ID)
	assert.Equal(t, loc, h[len(h)-1].Location)
	assert.Equal(t, &desc, h[len(h)-1].Description)
	assert.Equal(t, loc, f.store.drivers["driver-7"].CurrentLocation)

	f.emitter.mu.Lock()
	changed := f.emitter.events[1].Payload.(events.OrderStatusChangedEvent)
	f.emitter.mu.Unlock()
	assert.Equal(t, models.StatusPending, changed.PreviousStatus)
	assert.True(t, changed.DriverAssigned())
}

func TestUpdateStatus_Errors(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{})
	var ve *apperrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{Status: "teleported"})
	assert.ErrorAs(t, err, &ve)

	var nf *apperrors.NotFoundError
	_, err = f.svc.UpdateStatus(context.Background(), uuid.NewString(), models.UpdateStatusRequest{Status: "confirmed"})
	assert.ErrorAs(t, err, &nf)
	_, err = f.svc.UpdateStatus(context.Background(), "not-a-uuid", models.UpdateStatusRequest{Status: "confirmed"})
	assert.ErrorAs(t, err, &nf)
}

func TestUpdateStatus_StorageFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	f.store.failAppend = true

	_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{Status: "confirmed"})
	var se *apperrors.StorageError
	require.ErrorAs(t, err, &se)

	assert.Equal(t, models.StatusPending, f.store.order(o.ID).Status)
	assert.Len(t, f.store.history(o.ID), 1)
	assert.Equal(t, []events.EventType{events.EventOrderCreated}, f.emitter.types())
}

func TestUpdateStatus_ConcurrentTransitionsSerialize(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{Status: "confirmed"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, f.store.history(o.ID), 2)
	f.assertStatusMatchesHistory(t, o.ID)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)

	cancelled, err := f.svc.CancelOrder(context.Background(), o.ID.String())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	h := f.store.history(o.ID)
	assert.Equal(t, "Order cancelled by user", *h[len(h)-1].Description)

	_, err = f.svc.CancelOrder(context.Background(), o.ID.String())
	var it *apperrors.InvalidTransitionError
	assert.ErrorAs(t, err, &it)
}

func TestCancelOrder_DeliveredIsRejected(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{Status: "delivered"})
	require.NoError(t, err)

	_, err = f.svc.CancelOrder(context.Background(), o.ID.String())
	var it *apperrors.InvalidTransitionError
	require.ErrorAs(t, err, &it)

	assert.Equal(t, models.StatusDelivered, f.store.order(o.ID).Status)
	assert.Len(t, f.store.history(o.ID), 2)
}

func (f *fixture) withDriver(t *testing.T, o *models.Order) {
	t.Helper()
	driver := "driver-7"
	f.store.mu.Lock()
	f.store.drivers[driver] = models.Driver{ID: driver, FirstName: "Sam", LastName: "Rivera", Phone: "555-0100"}
	f.store.mu.Unlock()
	_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{
		Status: "picked_up", DriverID: &driver, Location: &models.Coordinates{Lat: 40.72, Lng: -73.99},
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Shutdown(context.Background()))
}

func TestGetTracking(t *testing.T) {
	f := newFixture(t)
	req := pizzaRequest()
	req.DeliveryCoordinates = &models.Coordinates{Lat: 40.73, Lng: -73.93}
	o, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	f.withDriver(t, o)

	view, err := f.svc.GetTracking(context.Background(), o.ID.String())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPickedUp, view.Status)
	require.NotNil(t, view.Driver)
	assert.Equal(t, "Sam Rivera", view.Driver.Name)
	require.NotNil(t, view.CurrentETA)
	assert.Equal(t, "20 mins", view.CurrentETA.DurationText)
	require.Len(t, view.TrackingHistory, 2)
	assert.Equal(t, models.StatusPending, view.TrackingHistory[0].Status)
}

func TestGetTracking_ETATimeout(t *testing.T) {
	f := newFixture(t)
	req := pizzaRequest()
	req.DeliveryCoordinates = &models.Coordinates{Lat: 40.73, Lng: -73.93}
	o, err := f.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)
	f.withDriver(t, o)
	f.eta.block = true

	start := time.Now()
	view, err := f.svc.GetTracking(context.Background(), o.ID.String())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.Nil(t, view.CurrentETA)
	assert.Equal(t, o.ID, view.OrderID)
	assert.Equal(t, models.StatusPickedUp, view.Status)
	assert.Equal(t, "123 Main St", view.DeliveryAddress)
	assert.NotNil(t, view.Driver)
	assert.Len(t, view.TrackingHistory, 2)
}

func TestGetTracking_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetTracking(context.Background(), uuid.NewString())
	var nf *apperrors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestGetOrder_HistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	o := f.create(t)
	_, err := f.svc.UpdateStatus(context.Background(), o.ID.String(), models.UpdateStatusRequest{Status: "confirmed"})
	require.NoError(t, err)

	detail, err := f.svc.GetOrder(context.Background(), o.ID.String())
	require.NoError(t, err)
	require.Len(t, detail.TrackingHistory, 2)
	assert.Equal(t, models.StatusConfirmed, detail.TrackingHistory[0].Status)
}

func TestListOrders_Pagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t)
	}

	orders, page, err := f.svc.ListOrders(context.Background(), models.OrderFilter{Page: 0, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, orders, 3)
	assert.Equal(t, models.Pagination{Page: 1, Limit: 100, Total: 3, Pages: 1}, page)

	_, _, err = f.svc.ListOrders(context.Background(), models.OrderFilter{Status: "lost"})
	var ve *apperrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}
