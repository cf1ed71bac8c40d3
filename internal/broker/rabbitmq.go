// Package broker fans realtime events out across server nodes through a
// RabbitMQ topic exchange, so a user connected to any node receives events
// produced on every node.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bhandras/bazaar/pkg/logger"
)

const (
	// Exchange is the topic exchange carrying per-user events.
	Exchange = "bazaar.events"

	userKeyPrefix = "user."
	bindAllUsers  = userKeyPrefix + "#"
)

// Envelope is one event addressed to every socket of a user.
type Envelope struct {
	// Origin is the node that published the event.
	Origin  string          `json:"origin"`
	UserID  string          `json:"userId"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(origin, userID, event string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Envelope{Origin: origin, UserID: userID, Event: event, Payload: raw}, nil
}

// RoutingKey returns the topic routing key for user.
func RoutingKey(userID string) string {
	return userKeyPrefix + userID
}

// RabbitMQ publishes and consumes envelopes for one node.
type RabbitMQ struct {
	nodeID  string
	conn    *amqp.Connection
	channel *amqp.Channel

	mu     sync.Mutex
	closed bool
}

// Dial connects to url and declares the exchange.
func Dial(url, nodeID string) (*RabbitMQ, error) {
	if nodeID == "" {
		return nil, errors.New("broker: node id is required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	return &RabbitMQ{nodeID: nodeID, conn: conn, channel: ch}, nil
}

// NodeID returns the id this client publishes as.
func (r *RabbitMQ) NodeID() string { return r.nodeID }

// Publish sends env to every node.
func (r *RabbitMQ) Publish(ctx context.Context, env Envelope) error {
	if env.Origin == "" {
		env.Origin = r.nodeID
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return r.channel.PublishWithContext(ctx,
		Exchange,               // exchange
		RoutingKey(env.UserID), // routing key
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType: "application/json",
			AppId:       r.nodeID,
			Body:        body,
		},
	)
}

// Consume binds a private queue for this node to every user key and streams
// decoded envelopes until ctx is done. Undecodable deliveries are logged and
// skipped.
func (r *RabbitMQ) Consume(ctx context.Context) (<-chan Envelope, error) {
	q, err := r.channel.QueueDeclare(
		"",    // name (server-generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare node queue: %w", err)
	}

	err = r.channel.QueueBind(q.Name, bindAllUsers, Exchange, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to bind node queue: %w", err)
	}

	tag := "bazaar-" + r.nodeID
	deliveries, err := r.channel.Consume(
		q.Name, // queue
		tag,    // consumer tag
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = r.channel.Cancel(tag, false)
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				env, err := Decode(d)
				if err != nil {
					logger.Warnf("broker: dropping delivery: %v", err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					_ = r.channel.Cancel(tag, false)
					return
				}
			}
		}
	}()
	return out, nil
}

// Decode parses one delivery.
func Decode(d amqp.Delivery) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.UserID == "" || env.Event == "" {
		return Envelope{}, errors.New("invalid envelope: missing user or event")
	}
	if env.Origin == "" {
		env.Origin = d.AppId
	}
	return env, nil
}

// Close shuts down the channel and connection. Safe to call repeatedly.
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}
