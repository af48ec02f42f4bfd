package app

import (
	"context"
	"testing"

	"smsdispatch/internal/config"
)

func TestNewGateways_RegistersProviders(t *testing.T) {
	registry := NewGateways(config.GatewayConfig{MockSuccessRate: 1})

	names := registry.Names()
	want := []string{"bulkgate", "mock", "ombala"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
		}
	}
}

func TestOpenRedis_DisabledWithoutAddr(t *testing.T) {
	rdb, err := OpenRedis(context.Background(), config.RedisConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rdb != nil {
		t.Error("expected nil client when redis is not configured")
	}
}
