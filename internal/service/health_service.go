package service

import (
	"context"
	"database/sql"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Health status constants
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusUnhealthy    = "unhealthy"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
)

// HealthStatus represents the overall health status of the application
type HealthStatus struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Gateways  map[string]string `json:"gateways,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
}

// GatewayHealth reports breaker state per gateway
type GatewayHealth interface {
	Health() map[string]string
}

// HealthChecker handles health check operations
type HealthChecker struct {
	db       *sql.DB
	queueURL string
	redis    *redis.Client
	gateways GatewayHealth
	version  string
}

// NewHealthService creates a new HealthChecker instance. An empty
// queueURL or nil redis client reports that dependency as disabled.
func NewHealthService(db *sql.DB, queueURL string, rdb *redis.Client, gateways GatewayHealth, version string) *HealthChecker {
	return &HealthChecker{
		db:       db,
		queueURL: queueURL,
		redis:    rdb,
		gateways: gateways,
		version:  version,
	}
}

// checkDatabase verifies PostgreSQL connectivity with a timeout
func (h *HealthChecker) checkDatabase(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// checkQueue verifies RabbitMQ connectivity
func (h *HealthChecker) checkQueue() string {
	if h.queueURL == "" {
		return StatusDisabled
	}
	conn, err := amqp.DialConfig(h.queueURL, amqp.Config{Dial: amqp.DefaultDial(2 * time.Second)})
	if err != nil {
		return StatusDisconnected
	}
	defer conn.Close()

	return StatusConnected
}

func (h *HealthChecker) checkRedis(ctx context.Context) string {
	if h.redis == nil {
		return StatusDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.redis.Ping(ctx).Err(); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

// determineOverallStatus calculates the overall health status based on service statuses
func (h *HealthChecker) determineOverallStatus(services map[string]string) string {
	if services["database"] == StatusDisconnected {
		return StatusUnhealthy
	}
	for _, status := range services {
		if status == StatusDisconnected {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

// CheckHealth performs health checks on all dependencies and returns the overall status
func (h *HealthChecker) CheckHealth(ctx context.Context) *HealthStatus {
	services := map[string]string{
		"database": h.checkDatabase(ctx),
		"queue":    h.checkQueue(),
		"redis":    h.checkRedis(ctx),
	}

	status := &HealthStatus{
		Status:    h.determineOverallStatus(services),
		Services:  services,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	if h.gateways != nil {
		status.Gateways = h.gateways.Health()
	}
	return status
}
