package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Log      LogConfig
	Dispatch DispatchConfig
	Gateways GatewayConfig
	Env      string `env:"ENV" envDefault:"development"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"smsdispatch"`
	Password string `env:"POSTGRES_PASSWORD"`
	DBName   string `env:"POSTGRES_DB" envDefault:"smsdispatch_db"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	MaxOpen  int    `env:"POSTGRES_MAX_OPEN" envDefault:"20"`
}

// RabbitMQConfig holds RabbitMQ configuration. An empty Host disables
// the dispatch trigger queue and event publishing.
type RabbitMQConfig struct {
	Host         string `env:"RABBITMQ_HOST" envDefault:"localhost"`
	Port         string `env:"RABBITMQ_PORT" envDefault:"5672"`
	User         string `env:"RABBITMQ_DEFAULT_USER" envDefault:"guest"`
	Password     string `env:"RABBITMQ_DEFAULT_PASS" envDefault:"guest"`
	TriggerQueue string `env:"RABBITMQ_TRIGGER_QUEUE" envDefault:"dispatch_triggers"`
	EventsTopic  string `env:"RABBITMQ_EVENTS_EXCHANGE" envDefault:"dispatch_events"`
}

// RedisConfig holds Redis configuration. An empty Addr falls back to
// in-process pacing.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Prefix   string `env:"REDIS_PREFIX" envDefault:"smsdispatch"`
}

// LogConfig controls the zerolog output
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// DispatchConfig tunes the dispatch scheduler
type DispatchConfig struct {
	PollInterval    time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"5s"`
	BatchSize       int           `env:"DISPATCH_BATCH_SIZE" envDefault:"500"`
	MaxTries        int           `env:"DISPATCH_MAX_TRIES" envDefault:"3"`
	RatePerSecond   int           `env:"DISPATCH_RATE_PER_SECOND" envDefault:"5"`
	StaleClaimAfter time.Duration `env:"DISPATCH_STALE_CLAIM_AFTER" envDefault:"10m"`
	DefaultCountry  string        `env:"DISPATCH_DEFAULT_COUNTRY" envDefault:"AO"`
}

// GatewayConfig holds outbound gateway selection and credentials
type GatewayConfig struct {
	Primary          string        `env:"GATEWAY_PRIMARY" envDefault:"bulkgate"`
	Secondary        string        `env:"GATEWAY_SECONDARY" envDefault:"ombala"`
	FallbackEnabled  bool          `env:"GATEWAY_FALLBACK_ENABLED" envDefault:"true"`
	Timeout          time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`
	BreakerFailures  int           `env:"GATEWAY_BREAKER_FAILURES" envDefault:"5"`
	BreakerReset     time.Duration `env:"GATEWAY_BREAKER_RESET" envDefault:"30s"`
	MockSuccessRate  float64       `env:"GATEWAY_MOCK_SUCCESS_RATE" envDefault:"0.95"`
	BulkGateURL      string        `env:"BULKGATE_URL" envDefault:"https://portal.bulkgate.com/api/1.0/simple/transactional"`
	BulkGateAppID    string        `env:"BULKGATE_APPLICATION_ID"`
	BulkGateAppToken string        `env:"BULKGATE_APPLICATION_TOKEN"`
	BulkGateSender   string        `env:"BULKGATE_DEFAULT_SENDER"`
	OmbalaURL        string        `env:"OMBALA_URL" envDefault:"https://api.useombala.ao/v1/messages"`
	OmbalaToken      string        `env:"OMBALA_TOKEN"`
	OmbalaSender     string        `env:"OMBALA_DEFAULT_SENDER"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields and sane bounds
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if c.Dispatch.MaxTries < 1 {
		return fmt.Errorf("DISPATCH_MAX_TRIES must be at least 1")
	}
	if c.Dispatch.RatePerSecond < 1 {
		return fmt.Errorf("DISPATCH_RATE_PER_SECOND must be at least 1")
	}
	if c.Dispatch.BatchSize < 1 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be at least 1")
	}
	if c.Gateways.Primary == "" {
		return fmt.Errorf("GATEWAY_PRIMARY is required")
	}
	return nil
}

// GetDatabaseDSN returns PostgreSQL connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRabbitMQURL returns RabbitMQ connection URL
func (c *Config) GetRabbitMQURL() string {
	if c.RabbitMQ.Host == "" {
		return ""
	}
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
