// Package notification delivers committed in-app notifications to external
// consumers. Rows in the notifications table stay the source of truth; the
// publisher only fans them out to a message broker.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Message
// ---------------------------------------------------------------------------

// Message is one notification addressed to one user.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"userId"`
	Text      string     `json:"message"`
	ClaimID   *uuid.UUID `json:"claimId,omitempty"`
	ActorID   uuid.UUID  `json:"actorId"`
	CreatedAt time.Time  `json:"createdAt"`
}

// RoutingKey addresses the message to its recipient so consumers can bind
// per user or with a wildcard.
func (m Message) RoutingKey() string {
	return "notification.user." + m.UserID.String()
}

// Encode renders the wire body.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Publisher hands notifications to a delivery channel.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Message) error { return nil }

// ---------------------------------------------------------------------------
// AMQP
// ---------------------------------------------------------------------------

// AMQPPublisher publishes persistent JSON messages to a topic exchange. An
// amqp channel is not safe for concurrent publishing, so calls are
// serialised.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

// Publish sends each message. A closed channel or connection is reopened
// once before giving up.
func (p *AMQPPublisher) Publish(ctx context.Context, msgs ...Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		body, err := m.Encode()
		if err != nil {
			return fmt.Errorf("encode notification %s: %w", m.ID, err)
		}
		pub := amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    m.ID.String(),
			Timestamp:    m.CreatedAt,
			Headers: amqp.Table{
				"message_type": "notification",
			},
		}

		err = p.ch.PublishWithContext(ctx, p.exchange, m.RoutingKey(), false, false, pub)
		if errors.Is(err, amqp.ErrClosed) {
			p.logger.Warn().Msg("rabbitmq channel closed, reconnecting")
			p.closeLocked()
			if cerr := p.connect(); cerr != nil {
				return cerr
			}
			err = p.ch.PublishWithContext(ctx, p.exchange, m.RoutingKey(), false, false, pub)
		}
		if err != nil {
			return fmt.Errorf("publish notification %s: %w", m.ID, err)
		}
	}
	return nil
}

// Ping reports whether the broker connection is open.
func (p *AMQPPublisher) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *AMQPPublisher) closeLocked() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.ch = nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// In-memory publisher
// ---------------------------------------------------------------------------

// MemoryPublisher records published messages. It backs tests and
// deployments without a broker.
type MemoryPublisher struct {
	mu         sync.Mutex
	sent       []Message
	ShouldFail bool
}

func (m *MemoryPublisher) Publish(_ context.Context, msgs ...Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("broker unavailable")
	}
	m.sent = append(m.sent, msgs...)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MemoryPublisher) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// ByRecipient returns the recorded messages addressed to userID.
func (m *MemoryPublisher) ByRecipient(userID uuid.UUID) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.sent {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}
