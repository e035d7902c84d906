package controllers

import (
	"context"
	"net/http"
	"time"

	"order-tracking-service/notifications"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a dependency answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HubStatus is implemented by the notification hub.
type HubStatus interface {
	Status() notifications.Status
}

// SessionCounter is implemented by the WebSocket gateway.
type SessionCounter interface {
	SessionCount() int
}

// BrokerChecker is an event mirror that can report its connection state.
type BrokerChecker interface {
	Name() string
	Ping() error
}

// StatusController serves liveness and dependency status.
type StatusController struct {
	db       Pinger
	hub      HubStatus
	sessions SessionCounter
	brokers  []BrokerChecker
}

func NewStatusController(db Pinger, hub HubStatus, sessions SessionCounter, brokers ...BrokerChecker) *StatusController {
	return &StatusController{db: db, hub: hub, sessions: sessions, brokers: brokers}
}

// Health handles GET /health
func (sc *StatusController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "order-tracking-service",
		"timestamp": time.Now().UTC(),
	})
}

// Status handles GET /api/status
func (sc *StatusController) Status(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	database := "connected"
	if err := sc.db.Ping(pingCtx); err != nil {
		database = "unavailable"
	}

	brokers := make(map[string]string, len(sc.brokers))
	for _, b := range sc.brokers {
		brokers[b.Name()] = "connected"
		if err := b.Ping(); err != nil {
			brokers[b.Name()] = "unavailable"
		}
	}

	ctx.JSON(http.StatusOK, gin.H{
		"server":    "running",
		"database":  database,
		"brokers":   brokers,
		"hub":       sc.hub.Status(),
		"sessions":  sc.sessions.SessionCount(),
		"timestamp": time.Now().UTC(),
	})
}
