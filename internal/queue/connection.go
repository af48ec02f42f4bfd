package queue

import (
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Connection wraps one AMQP connection and channel, redialing on demand
type Connection struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	log     zerolog.Logger
	mu      sync.Mutex
}

// NewConnection dials RabbitMQ and opens a channel
func NewConnection(url string, log zerolog.Logger) (*Connection, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url cannot be empty")
	}

	c := &Connection{
		url: url,
		log: log.With().Str("component", "rabbitmq").Logger(),
	}
	if err := c.dial(); err != nil {
		return nil, err
	}

	c.log.Info().Msg("connected to rabbitmq")
	return c, nil
}

// Channel returns the channel, reconnecting if it was closed
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil || c.channel.IsClosed() || c.conn == nil || c.conn.IsClosed() {
		c.log.Warn().Msg("channel closed, reconnecting")
		c.closeLocked()
		if err := c.dial(); err != nil {
			return nil, fmt.Errorf("failed to reconnect: %w", err)
		}
		c.log.Info().Msg("reconnected to rabbitmq")
	}

	return c.channel, nil
}

func (c *Connection) dial() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func (c *Connection) closeLocked() []error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
		c.conn = nil
	}
	return errs
}

// Close closes the channel and connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if errs := c.closeLocked(); len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.log.Info().Msg("rabbitmq connection closed")
	return nil
}

// IsConnected reports whether both connection and channel are open
func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}
