package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"order-tracking-service/common/logger"
	"order-tracking-service/common/middleware"
	"order-tracking-service/controllers"
	"order-tracking-service/database"
	"order-tracking-service/events"
	"order-tracking-service/gateway"
	"order-tracking-service/kafka"
	"order-tracking-service/metrics"
	"order-tracking-service/notifications"
	aws_pkg "order-tracking-service/pkg/aws"
	"order-tracking-service/providers"
	"order-tracking-service/rabbitmq"
	"order-tracking-service/repository"
	"order-tracking-service/routes"
	"order-tracking-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "order-tracking-service"

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	initLogger(cfg)
	defer logger.Log.Sync() //nolint:errcheck
	zlog := logger.Log

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Register()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.ConnectPostgres(rootCtx, cfg.Postgres(), logger.Named("database"))
	if err != nil {
		zlog.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db) //nolint:errcheck

	// Notification hub, optionally relayed through Redis
	hub := notifications.NewHub(cfg.HubBuffer, logger.Named("hub"))
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(rootCtx, cfg.RedisURL, zlog)
		if err != nil {
			zlog.Warn("Redis unavailable, hub stays in-process", zap.Error(err))
		} else if err := hub.UseRelay(notifications.NewRedisRelay(rdb, "", logger.Named("redis-relay"))); err != nil {
			zlog.Warn("Redis relay failed to start, hub stays in-process", zap.Error(err))
			_ = rdb.Close()
		} else {
			defer rdb.Close() //nolint:errcheck
		}
	}
	notifier := notifications.NewNotifier(hub, logger.Named("notifier"))
	dispatcher := notifications.NewDispatcher(notifier, 0, logger.Named("notifier"))
	dispatcher.Start()

	// Domain events: hub fan-out plus external mirrors
	bus := events.NewEventBus()
	bus.SubscribeTypes(dispatcher.Handle)

	sinks, closeSinks := buildSinks(rootCtx, cfg, zlog)
	mirror := events.NewMirror(logger.Named("mirror"), 0, sinks...)
	mirror.Start()
	bus.SubscribeTypes(mirror.Handle)

	// Routing provider
	var eta providers.ETAProvider = providers.Disabled{}
	var geocoder providers.Geocoder = providers.Disabled{}
	if cfg.GoogleMapsAPIKey != "" {
		maps := providers.NewGoogleMapsProvider(cfg.GoogleMapsAPIKey, cfg.ETATimeout, logger.Named("google-maps"))
		eta, geocoder = maps, maps
	} else {
		zlog.Warn("Google Maps API key not found, ETA calculations will be disabled")
	}

	// DI chain
	orderRepo := repository.NewGormOrderRepository(db)
	trackingRepo := repository.NewGormTrackingRepository(db)
	orderService := services.NewOrderService(orderRepo, trackingRepo, eta, geocoder, bus, cfg.ETATimeout, logger.Named("order-service"))
	ws := gateway.New(orderService, hub, notifier, cfg.AllowedOrigins, 0, logger.Named("gateway"))

	orderController := controllers.NewOrderController(orderService)
	var brokers []controllers.BrokerChecker
	for _, s := range sinks {
		if b, ok := s.(controllers.BrokerChecker); ok {
			brokers = append(brokers, b)
		}
	}
	statusController := controllers.NewStatusController(orderRepo, hub, ws, brokers...)

	// Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(zlog))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	limiter := middleware.NewRateLimiter(rootCtx, 20, 40, 10*time.Minute)
	api := r.Group("/", middleware.RateLimitMiddleware(limiter), middleware.RequestTimeout(30*time.Second))
	routes.RegisterOrderRoutes(api, orderController)
	routes.RegisterOpsRoutes(r, statusController)
	routes.RegisterRealtimeRoutes(r, ws.ServeWS)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	zlog.Info("Order tracking service started", zap.String("port", cfg.Port), zap.String("hub_mode", hub.Status().Mode))
	<-rootCtx.Done()
	zlog.Info("Shutting down order tracking service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}
	ws.Close()
	if err := orderService.Shutdown(ctx); err != nil {
		zlog.Warn("Background ETA work did not finish", zap.Error(err))
	}
	dispatcher.Close()
	mirror.Close()
	if err := hub.Close(); err != nil {
		zlog.Warn("Hub relay close failed", zap.Error(err))
	}
	closeSinks()
	zlog.Info("Server exited cleanly")
}

// initLogger sets up the global logger, teeing to CloudWatch Logs when enabled.
func initLogger(cfg *Config) {
	if !cfg.CloudWatchEnabled {
		logger.Initialize(cfg.AppEnv)
		return
	}

	awsCfg, err := aws_pkg.LoadAWSConfig(context.Background())
	if err == nil {
		var cw *aws_pkg.CloudWatchLogsWriter
		if cw, err = aws_pkg.NewCloudWatchLogsWriter(context.Background(), awsCfg, cfg.CloudWatchLogGroup, serviceName); err == nil {
			logger.InitializeWithWriter(cfg.AppEnv, cw)
			return
		}
	}
	logger.Initialize(cfg.AppEnv)
	logger.Log.Warn("CloudWatch logs writer init failed (non-fatal)", zap.Error(err))
}

// buildSinks connects every configured event mirror. A mirror that cannot be
// reached is skipped; order processing never depends on it.
func buildSinks(ctx context.Context, cfg *Config, zlog *zap.Logger) ([]events.Sink, func()) {
	var sinks []events.Sink
	var closers []func()

	if cfg.KafkaBrokers != "" {
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.OrderEventsTopic, logger.Named("kafka"))
		sinks = append(sinks, p)
		closers = append(closers, func() {
			if err := p.Close(); err != nil {
				zlog.Warn("Kafka producer close failed", zap.Error(err))
			}
		})
	}

	if cfg.OrderEventsSNSARN != "" {
		awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
		if err != nil {
			zlog.Warn("AWS config unavailable, SNS mirror disabled", zap.Error(err))
		} else {
			sinks = append(sinks, aws_pkg.NewSNSTopic(aws_pkg.NewSNSClient(awsCfg), cfg.OrderEventsSNSARN))
		}
	}

	if cfg.RabbitMQURL != "" {
		c, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			zlog.Warn("RabbitMQ unavailable, AMQP mirror disabled", zap.Error(err))
		} else {
			sinks = append(sinks, c)
			closers = append(closers, c.Close)
		}
	}

	for _, s := range sinks {
		zlog.Info("Event mirror enabled", zap.String("sink", s.Name()))
	}
	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
