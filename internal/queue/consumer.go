package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"smsdispatch/internal/models"
)

// Consumer reads dispatch triggers off the worker queue
type Consumer struct {
	conn      *Connection
	queueName string
	out       chan models.DispatchTrigger
	log       zerolog.Logger
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewConsumer declares the trigger queue and prepares a consumer
func NewConsumer(conn *Connection, queueName string, log zerolog.Logger) (*Consumer, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	if err := declareTriggerQueue(ch, queueName); err != nil {
		return nil, err
	}

	return &Consumer{
		conn:      conn,
		queueName: queueName,
		out:       make(chan models.DispatchTrigger, 1),
		log:       log.With().Str("component", "trigger_consumer").Str("queue", queueName).Logger(),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}, nil
}

// Triggers is closed once the consumer stops
func (c *Consumer) Triggers() <-chan models.DispatchTrigger {
	return c.out
}

// Start begins consuming in a background goroutine
func (c *Consumer) Start() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		defer close(c.doneChan)
		defer close(c.out)

		for {
			select {
			case <-c.stopChan:
				return
			case d, ok := <-msgs:
				if !ok {
					c.log.Warn().Msg("delivery channel closed")
					return
				}
				c.handle(d)
			}
		}
	}()

	c.log.Info().Msg("consumer started")
	return nil
}

// handle forwards a trigger without blocking. A pending trigger already
// covers the next pass, so extra ones are dropped.
func (c *Consumer) handle(d amqp.Delivery) {
	trigger, err := decodeTrigger(d.Body)
	if err != nil {
		c.log.Error().Err(err).Msg("dropping malformed trigger")
		d.Nack(false, false)
		return
	}

	select {
	case c.out <- trigger:
	default:
	}
	d.Ack(false)
}

func decodeTrigger(body []byte) (models.DispatchTrigger, error) {
	var trigger models.DispatchTrigger
	if err := json.Unmarshal(body, &trigger); err != nil {
		return trigger, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}
	return trigger, nil
}

// Stop stops consuming and waits for the loop to exit
func (c *Consumer) Stop() error {
	close(c.stopChan)
	<-c.doneChan

	c.log.Info().Msg("consumer stopped")
	return nil
}
