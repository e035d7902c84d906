package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmation is the broker verdict for one publish.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// publisher is the part of *amqp.Channel used for publishing.
type publisher interface {
	publish(ctx context.Context, exchange string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (a amqpChannel) publish(ctx context.Context, exchange string, msg amqp.Publishing) (confirmation, error) {
	dc, err := a.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, "", false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("channel is not in confirm mode")
	}
	return dc, nil
}

func (a amqpChannel) Close() error { return a.ch.Close() }

// Client publishes order events to a durable fanout exchange with publisher
// confirms. Each publish waits for the confirm of its own delivery tag.
type Client struct {
	conn     *amqp.Connection
	ch       publisher
	exchange string
}

// Dial connects to url, declares the fanout exchange and enables confirms.
func Dial(url, exchange string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare %s: %w", exchange, err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return &Client{conn: conn, ch: amqpChannel{ch: ch}, exchange: exchange}, nil
}

func newClient(ch publisher, exchange string) *Client {
	return &Client{ch: ch, exchange: exchange}
}

func (c *Client) Name() string { return "amqp" }

// Ping reports whether the connection is still open.
func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Send publishes body to the exchange and waits for the broker confirm. key is
// the order id and travels as a header; every message gets its own MessageId.
func (c *Client) Send(ctx context.Context, key string, body []byte) error {
	conf, err := c.ch.publish(ctx, c.exchange, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Headers:      amqp.Table{"order_id": key},
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("publish NACK from broker")
	}
	return nil
}

func (c *Client) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
