package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: "5432", User: "app", Password: "secret",
		DBName: "orders", SSLMode: "disable", TimeZone: "UTC",
	}
	assert.Equal(t,
		"host=db user=app password=secret dbname=orders port=5432 sslmode=disable TimeZone=UTC",
		cfg.DSN())
}

func TestConnectPostgres_MissingCredentials(t *testing.T) {
	_, err := ConnectPostgres(context.Background(), PostgresConfig{DBName: "orders"}, zap.NewNop())
	assert.EqualError(t, err, "POSTGRES_USER not set")

	_, err = ConnectPostgres(context.Background(), PostgresConfig{User: "app", DBName: "orders"}, zap.NewNop())
	assert.EqualError(t, err, "POSTGRES_PASSWORD not set")

	_, err = ConnectPostgres(context.Background(), PostgresConfig{User: "app", Password: "x"}, zap.NewNop())
	assert.EqualError(t, err, "POSTGRES_DB not set")
}

func TestPingAndClose(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	assert.NoError(t, Ping(context.Background(), db))

	mock.ExpectClose()
	assert.NoError(t, Close(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
