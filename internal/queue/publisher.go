package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"smsdispatch/internal/models"
)

// Publisher sends dispatch triggers to the worker queue and dispatch
// events to a topic exchange keyed by event type
type Publisher struct {
	conn         *Connection
	triggerQueue string
	exchange     string
}

// NewPublisher declares the durable trigger queue and, when exchange is
// set, the events topic exchange
func NewPublisher(conn *Connection, triggerQueue, exchange string) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if triggerQueue == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	if err := declareTriggerQueue(ch, triggerQueue); err != nil {
		return nil, err
	}

	if exchange != "" {
		err = ch.ExchangeDeclare(
			exchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
	}

	return &Publisher{
		conn:         conn,
		triggerQueue: triggerQueue,
		exchange:     exchange,
	}, nil
}

func declareTriggerQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	return nil
}

// PublishTrigger asks a worker to run a dispatch pass
func (p *Publisher) PublishTrigger(ctx context.Context, trigger models.DispatchTrigger) error {
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}
	return p.publish(ctx, "", p.triggerQueue, trigger)
}

// PublishEvent emits a dispatch event. It is a no-op without an exchange.
func (p *Publisher) PublishEvent(ctx context.Context, event models.DispatchEvent) error {
	if p.exchange == "" {
		return nil
	}
	return p.publish(ctx, p.exchange, event.Type, event)
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// Close is a no-op; the connection is closed by its owner
func (p *Publisher) Close() error {
	return nil
}
