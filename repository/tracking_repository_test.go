package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/models"
	"order-tracking-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTrackingEvents_Ascending(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormTrackingRepository(gormDB)

	id := uuid.New()
	t0 := time.Now().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{"id", "order_id", "status", "location", "description", "timestamp"}).
		AddRow(1, id.String(), "pending", nil, "Order placed successfully", t0).
		AddRow(2, id.String(), "confirmed", `{"lat":1,"lng":2}`, nil, t0.Add(time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_tracking" WHERE order_id = $1 ORDER BY timestamp ASC, id ASC`)).
		WillReturnRows(rows)

	events, err := repo.ListTrackingEvents(context.Background(), id, true)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.StatusPending, events[0].Status)
	assert.Nil(t, events[0].Location)
	assert.Equal(t, &models.Coordinates{Lat: 1, Lng: 2}, events[1].Location)
}

func TestListTrackingEvents_NewestFirstEmpty(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormTrackingRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY timestamp DESC, id DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	events, err := repo.ListTrackingEvents(context.Background(), uuid.New(), false)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestListTrackingEvents_StorageError(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormTrackingRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "order_tracking"`)).
		WillReturnError(errors.New("timeout"))

	_, err := repo.ListTrackingEvents(context.Background(), uuid.New(), true)
	var se *apperrors.StorageError
	assert.ErrorAs(t, err, &se)
}
