package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	apperrors "order-tracking-service/common/errors"
	"order-tracking-service/models"
	"order-tracking-service/notifications"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session is one connected client. All writes to the socket happen on the
// write pump; everything else enqueues onto send.
type Session struct {
	id      uuid.UUID
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]*notifications.Subscription

	closeOnce sync.Once
}

func newSession(g *Gateway, conn *websocket.Conn) *Session {
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:      id,
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, g.sendBuffer),
		logger:  g.logger.With(zap.String("session_id", id.String())),
		ctx:     ctx,
		cancel:  cancel,
		subs:    make(map[string]*notifications.Subscription),
	}
}

// close releases every subscription the session owns and drops the socket.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		subs := s.subs
		s.subs = make(map[string]*notifications.Subscription)
		s.mu.Unlock()
		for _, sub := range subs {
			s.gateway.hub.Unsubscribe(sub)
		}

		_ = s.conn.Close()
		s.gateway.unregister(s)
		s.logger.Info("Client disconnected", zap.Int("released_subscriptions", len(subs)))
	})
}

func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket read failed", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			s.pushError("malformed frame: expected {\"event\": ..., \"data\": ...}")
			continue
		}
		s.dispatch(frame)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands msg to the write pump without blocking. A full queue drops it.
func (s *Session) enqueue(msg []byte) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		s.logger.Warn("Session send queue full, dropping push")
		return false
	}
}

func (s *Session) push(event string, data interface{}) bool {
	msg, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		s.logger.Error("Failed to encode push", zap.String("event", event), zap.Error(err))
		return false
	}
	return s.enqueue(msg)
}

func (s *Session) pushError(message string) {
	s.push(EventError, errorPayload{Message: message})
}

// relay is the hub handler of every subscription the session holds.
func (s *Session) relay(channel string, body []byte) {
	msg, err := hubFrame(body)
	if err != nil {
		s.logger.Warn("Dropping undecodable hub message", zap.String("channel", channel), zap.Error(err))
		return
	}
	s.enqueue(msg)
}

// subscribe joins channel once. ack sends a subscribed push.
func (s *Session) subscribe(channel string, ack bool) {
	if _, _, err := notifications.ParseChannel(channel); err != nil {
		s.pushError(err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if _, ok := s.subs[channel]; !ok {
		sub, err := s.gateway.hub.Subscribe(channel, s.relay)
		if err != nil {
			s.logger.Warn("Subscribe failed", zap.String("channel", channel), zap.Error(err))
			s.pushError("subscription unavailable")
			return
		}
		s.subs[channel] = sub
	}
	if ack {
		s.push(EventSubscribed, channelCommand{Channel: channel})
	}
}

func (s *Session) unsubscribe(channel string) {
	s.mu.Lock()
	sub, ok := s.subs[channel]
	delete(s.subs, channel)
	s.mu.Unlock()

	if ok {
		s.gateway.hub.Unsubscribe(sub)
	}
	s.push(EventUnsubscribed, channelCommand{Channel: channel})
}

func (s *Session) subscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) dispatch(frame Frame) {
	ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
	defer cancel()

	switch frame.Event {
	case cmdTrackOrder:
		s.handleTrackOrder(ctx, frame.Data)
	case cmdUpdateLocation:
		s.handleUpdateLocation(ctx, frame.Data)
	case cmdNewOrder:
		s.handleNewOrder(ctx, frame.Data)
	case cmdSubscribe, cmdUnsubscribe:
		var cmd channelCommand
		if err := json.Unmarshal(frame.Data, &cmd); err != nil || cmd.Channel == "" {
			s.pushError("channel is required")
			return
		}
		if frame.Event == cmdSubscribe {
			s.subscribe(cmd.Channel, true)
		} else {
			s.unsubscribe(cmd.Channel)
		}
	default:
		s.pushError("unknown event: " + frame.Event)
	}
}

// orderIDFrom accepts either a bare id string or {"orderId": ...}.
func orderIDFrom(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj notFoundPayload
	if err := json.Unmarshal(data, &obj); err == nil {
		return strings.TrimSpace(obj.OrderID)
	}
	return ""
}

func (s *Session) handleTrackOrder(ctx context.Context, data json.RawMessage) {
	orderID := orderIDFrom(data)
	if orderID == "" {
		s.pushError("orderId is required")
		return
	}

	detail, err := s.gateway.orders.GetOrder(ctx, orderID)
	if err != nil {
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			s.push(EventOrderNotFound, notFoundPayload{OrderID: orderID})
			return
		}
		s.logger.Error("trackOrder failed", zap.String("order_id", orderID), zap.Error(err))
		s.pushError("Failed to load order")
		return
	}

	s.subscribe(notifications.OrderChannel(detail.ID.String()), false)
	s.push(EventOrderUpdate, detail)
}

func (s *Session) handleUpdateLocation(ctx context.Context, data json.RawMessage) {
	var cmd locationCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.pushError("invalid location payload")
		return
	}
	if cmd.OrderID == "" || cmd.Location == nil || cmd.Location.Lat == nil || cmd.Location.Lng == nil {
		s.pushError("orderId and location {lat, lng} are required")
		return
	}
	loc := models.Coordinates{Lat: *cmd.Location.Lat, Lng: *cmd.Location.Lng}
	if !s.gateway.locations.PublishLocation(ctx, cmd.OrderID, loc) {
		s.pushError("location update not delivered")
	}
}

func (s *Session) handleNewOrder(ctx context.Context, data json.RawMessage) {
	var req models.CreateOrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.pushError("invalid order payload")
		return
	}

	order, err := s.gateway.orders.CreateOrder(ctx, req)
	if err != nil {
		var ve *apperrors.ValidationError
		if errors.As(err, &ve) {
			s.pushError(ve.Error())
			return
		}
		s.logger.Error("newOrder failed", zap.Error(err))
		s.pushError("Failed to create order")
		return
	}

	s.subscribe(notifications.OrderChannel(order.ID.String()), false)
	s.push(EventOrderConfirmed, order)
}
