package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Dispatch.MaxTries != 3 {
		t.Errorf("MaxTries = %d, want 3", cfg.Dispatch.MaxTries)
	}
	if cfg.Dispatch.RatePerSecond != 5 {
		t.Errorf("RatePerSecond = %d, want 5", cfg.Dispatch.RatePerSecond)
	}
	if cfg.Dispatch.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.Dispatch.PollInterval)
	}
	if cfg.Gateways.Primary != "bulkgate" || cfg.Gateways.Secondary != "ombala" {
		t.Errorf("gateways = %s/%s, want bulkgate/ombala", cfg.Gateways.Primary, cfg.Gateways.Secondary)
	}
	if !cfg.Gateways.FallbackEnabled {
		t.Error("fallback should be enabled by default")
	}
	if cfg.Dispatch.DefaultCountry != "AO" {
		t.Errorf("DefaultCountry = %s, want AO", cfg.Dispatch.DefaultCountry)
	}
}

func TestLoad_RequiresPassword(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when POSTGRES_PASSWORD is empty")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("DISPATCH_RATE_PER_SECOND", "10")
	t.Setenv("DISPATCH_STALE_CLAIM_AFTER", "2m")
	t.Setenv("GATEWAY_FALLBACK_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Dispatch.RatePerSecond != 10 {
		t.Errorf("RatePerSecond = %d, want 10", cfg.Dispatch.RatePerSecond)
	}
	if cfg.Dispatch.StaleClaimAfter != 2*time.Minute {
		t.Errorf("StaleClaimAfter = %v, want 2m", cfg.Dispatch.StaleClaimAfter)
	}
	if cfg.Gateways.FallbackEnabled {
		t.Error("fallback should be disabled")
	}
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tries", func(c *Config) { c.Dispatch.MaxTries = 0 }},
		{"zero rate", func(c *Config) { c.Dispatch.RatePerSecond = 0 }},
		{"zero batch", func(c *Config) { c.Dispatch.BatchSize = 0 }},
		{"no primary", func(c *Config) { c.Gateways.Primary = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{Password: "x"},
				Dispatch: DispatchConfig{MaxTries: 3, RatePerSecond: 5, BatchSize: 10},
				Gateways: GatewayConfig{Primary: "bulkgate"},
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGetRabbitMQURL_EmptyHostDisables(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetRabbitMQURL(); got != "" {
		t.Errorf("GetRabbitMQURL() = %q, want empty", got)
	}

	cfg.RabbitMQ = RabbitMQConfig{Host: "mq", Port: "5672", User: "u", Password: "p"}
	if got := cfg.GetRabbitMQURL(); got != "amqp://u:p@mq:5672/" {
		t.Errorf("GetRabbitMQURL() = %q", got)
	}
}
