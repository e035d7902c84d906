package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"order-tracking-service/metrics"
	"order-tracking-service/models"
	"order-tracking-service/notifications"
	"order-tracking-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	commandTimeout = 10 * time.Second
)

// Subscriber is the subscription side of the notification hub.
type Subscriber interface {
	Subscribe(channel string, handler notifications.Handler) (*notifications.Subscription, error)
	Unsubscribe(sub *notifications.Subscription)
}

// LocationPublisher rebroadcasts courier positions.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, orderID string, location models.Coordinates) bool
}

// Gateway owns every live WebSocket session and the subscriptions they hold.
type Gateway struct {
	orders     services.OrderService
	hub        Subscriber
	locations  LocationPublisher
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	closed   bool
}

// New creates a gateway. allowedOrigins is the comma-separated CORS list;
// empty or "*" accepts any origin.
func New(orders services.OrderService, hub Subscriber, locations LocationPublisher, allowedOrigins string, sendBuffer int, logger *zap.Logger) *Gateway {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	g := &Gateway{
		orders:     orders,
		hub:        hub,
		locations:  locations,
		sendBuffer: sendBuffer,
		logger:     logger,
		sessions:   make(map[uuid.UUID]*Session),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return g
}

func originChecker(allowedOrigins string) func(r *http.Request) bool {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 || allowed["*"] {
			return true
		}
		return allowed[origin]
	}
}

// ServeWS upgrades the request and runs the session until it ends.
// ?channels=a,b subscribes the session to extra channels on connect.
func (g *Gateway) ServeWS(c *gin.Context) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gateway is shutting down"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	s := newSession(g, conn)
	if !g.register(s) {
		s.close()
		return
	}
	g.logger.Info("Client connected", zap.String("session_id", s.id.String()), zap.String("remote", c.ClientIP()))

	s.subscribe(notifications.SystemChannel, false)
	if raw := c.Query("channels"); raw != "" {
		for _, ch := range strings.Split(raw, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				s.subscribe(ch, true)
			}
		}
	}

	go s.writePump()
	s.readPump()
}

func (g *Gateway) register(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.sessions[s.id] = s
	metrics.GatewaySessionsActive.Inc()
	return true
}

func (g *Gateway) unregister(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[s.id]; ok {
		delete(g.sessions, s.id)
		metrics.GatewaySessionsActive.Dec()
	}
}

// SessionCount reports the number of connected sessions.
func (g *Gateway) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Close refuses new sessions and terminates the live ones.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
