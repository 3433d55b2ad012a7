// Package events publishes pipeline outcome events to an AMQP topic
// exchange so downstream systems (CRM sync, analytics) can react
// without polling the API. Publishing is fire-and-forget: a broker
// outage never fails a reminder run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agreedhq/backoffice/internal/pkg/logger"
)

// Routing keys for the envelope types this service emits.
const (
	KeyNotificationSent     = "notification.sent"
	KeyCallContentGenerated = "callcontent.generated"
	KeyVideoReady           = "video.ready"
	KeyClientCreated        = "client.created"
)

// Envelope is the wire shape of every event.
type Envelope struct {
	Type       string      `json:"type"`
	ClientID   string      `json:"client_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload,omitempty"`
}

// Publisher emits outcome events.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

// NopPublisher drops every event. Used when AMQP is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Envelope) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

// AMQPPublisher publishes to a durable topic exchange.
type AMQPPublisher struct {
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher connects to the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{exchange: exchange, conn: conn, ch: ch}, nil
}

// Publish sends one envelope. The error is also logged here so call
// sites can ignore it without losing visibility.
func (p *AMQPPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	env.Type = key

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    env.OccurredAt,
		Body:         body,
	})
	if err != nil {
		logger.Warn("event publish failed", "key", key, "error", err.Error())
		return fmt.Errorf("events: publish %s: %w", key, err)
	}
	return nil
}

// Close tears down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
