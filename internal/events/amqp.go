package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher is the part of *amqp.Channel the forwarder needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarder republishes bus events to a topic exchange, routed by event
// type. Publish failures are logged by the bus and do not affect the caller.
type AMQPForwarder struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	pub      Publisher
	exchange string
	timeout  time.Duration
	logger   *zerolog.Logger
}

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string, logger *zerolog.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	f := NewAMQPForwarder(ch, exchange, logger)
	f.conn = conn
	f.ch = ch
	return f, nil
}

func NewAMQPForwarder(pub Publisher, exchange string, logger *zerolog.Logger) *AMQPForwarder {
	return &AMQPForwarder{
		pub:      pub,
		exchange: exchange,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Attach subscribes the forwarder to every event on the bus.
func (f *AMQPForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

func (f *AMQPForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.CreatedAt.UTC(),
		Body:         event.Payload,
	}
	if err := f.pub.PublishWithContext(ctx, f.exchange, event.Type, false, false, msg); err != nil {
		return fmt.Errorf("amqp publish %s: %w", event.Type, err)
	}
	f.logger.Debug().Str("event_type", event.Type).Str("event_id", event.ID).Msg("Event forwarded")
	return nil
}

func (f *AMQPForwarder) Close() error {
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
