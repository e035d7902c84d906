package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"order-tracking-service/database"
	aws_pkg "order-tracking-service/pkg/aws"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the order tracking service.
type Config struct {
	Port               string
	AppEnv             string
	PostgresUser       string
	PostgresPassword   string
	PostgresDB         string
	PostgresHost       string
	PostgresPort       string
	PostgresSSLMode    string
	PostgresTimeZone   string
	RedisURL           string
	GoogleMapsAPIKey   string
	ETATimeout         time.Duration
	HubBuffer          int
	KafkaBrokers       string
	OrderEventsTopic   string
	OrderEventsSNSARN  string
	RabbitMQURL        string
	RabbitMQExchange   string
	AllowedOrigins     string
	CloudWatchEnabled  bool
	CloudWatchLogGroup string
}

// secretsReader is the part of aws_pkg.SecretsClient used for overrides.
type secretsReader interface {
	GetSecret(ctx context.Context, name string) (string, error)
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// Postgres returns the database settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
		DBName:   c.PostgresDB,
		SSLMode:  c.PostgresSSLMode,
		TimeZone: c.PostgresTimeZone,
	}
}

// LoadConfig reads configuration from a .env file and environment variables
// with optional Secrets Manager override.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8085"),
		AppEnv:             getEnv("APP_ENV", "development"),
		PostgresUser:       os.Getenv("POSTGRES_USER"),
		PostgresPassword:   os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:         os.Getenv("POSTGRES_DB"),
		PostgresHost:       os.Getenv("POSTGRES_HOST"),
		PostgresPort:       getEnv("POSTGRES_PORT", "5432"),
		PostgresSSLMode:    getEnv("POSTGRES_SSLMODE", "disable"),
		PostgresTimeZone:   getEnv("POSTGRES_TIMEZONE", "UTC"),
		RedisURL:           os.Getenv("REDIS_URL"),
		GoogleMapsAPIKey:   os.Getenv("GOOGLE_MAPS_API_KEY"),
		KafkaBrokers:       os.Getenv("KAFKA_BROKERS"),
		OrderEventsTopic:   getEnv("ORDER_EVENTS_TOPIC", "order.events"),
		OrderEventsSNSARN:  os.Getenv("ORDER_EVENTS_SNS_TOPIC_ARN"),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", "notifications_fanout"),
		AllowedOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		CloudWatchEnabled:  os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/ecs/order-tracking-service"),
	}

	var err error
	if cfg.ETATimeout, err = time.ParseDuration(getEnv("ETA_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid ETA_TIMEOUT: %w", err)
	}
	if cfg.HubBuffer, err = strconv.Atoi(getEnv("HUB_SUBSCRIBER_BUFFER", "64")); err != nil {
		return nil, fmt.Errorf("invalid HUB_SUBSCRIBER_BUFFER: %w", err)
	}

	// Override credentials from Secrets Manager when running on AWS
	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err == nil {
			applySecrets(context.Background(), cfg, aws_pkg.NewSecretsClient(awsCfg))
		}
	}

	if cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresDB == "" || cfg.PostgresHost == "" {
		return nil, fmt.Errorf("database config incomplete")
	}
	return cfg, nil
}

func applySecrets(ctx context.Context, cfg *Config, sm secretsReader) {
	if m, err := sm.GetSecretMap(ctx, "order-tracking/DB_CREDENTIALS"); err == nil {
		override(&cfg.PostgresUser, m["POSTGRES_USER"])
		override(&cfg.PostgresPassword, m["POSTGRES_PASSWORD"])
		override(&cfg.PostgresDB, m["POSTGRES_DB"])
		override(&cfg.PostgresHost, m["POSTGRES_HOST"])
		override(&cfg.PostgresPort, m["POSTGRES_PORT"])
	}
	if v, err := sm.GetSecret(ctx, "order-tracking/GOOGLE_MAPS_API_KEY"); err == nil {
		override(&cfg.GoogleMapsAPIKey, v)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
