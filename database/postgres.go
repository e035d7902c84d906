package database

import (
	"context"
	"fmt"
	"time"

	"order-tracking-service/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OrderNumberSequence feeds the numeric suffix of order numbers.
const OrderNumberSequence = "order_number_seq"

// PostgresConfig holds the connection settings read by config.go.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	TimeZone string
}

// DSN renders the config as a libpq keyword/value string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode, c.TimeZone,
	)
}

func (c PostgresConfig) validate() error {
	switch {
	case c.User == "":
		return fmt.Errorf("POSTGRES_USER not set")
	case c.Password == "":
		return fmt.Errorf("POSTGRES_PASSWORD not set")
	case c.DBName == "":
		return fmt.Errorf("POSTGRES_DB not set")
	}
	return nil
}

// ConnectPostgres opens the database, retrying with a growing delay, and
// migrates the order tracking schema.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*gorm.DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var db *gorm.DB
	var err error

	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			sqlDB, poolErr := db.DB()
			if poolErr == nil {
				sqlDB.SetMaxOpenConns(25)
				sqlDB.SetMaxIdleConns(5)
				sqlDB.SetConnMaxLifetime(5 * time.Minute)
			}

			logger.Info("Connected to PostgreSQL successfully", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))

			if err := Migrate(db); err != nil {
				return nil, err
			}
			return db, nil
		}

		logger.Warn("DB connection failed, retrying",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i+1) * 2 * time.Second):
		}
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL after retries: %w", err)
}

// Migrate creates the tables and the order number sequence.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Order{},
		&models.TrackingEvent{},
		&models.Restaurant{},
		&models.Driver{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	if err := db.Exec("CREATE SEQUENCE IF NOT EXISTS " + OrderNumberSequence).Error; err != nil {
		return fmt.Errorf("create sequence %s: %w", OrderNumberSequence, err)
	}
	return nil
}

// Ping checks that the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
