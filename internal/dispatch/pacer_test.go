package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalPacer_SpacesSendsPerAccount(t *testing.T) {
	p := NewLocalPacer()
	ctx := context.Background()
	interval := 20 * time.Millisecond

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx, 1, interval); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Errorf("three sends took %v, want at least %v", elapsed, 2*interval)
	}
}

func TestLocalPacer_AccountsAreIndependent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewLocalPacer()
	p.now = func() time.Time { return now }
	ctx := context.Background()

	if err := p.Wait(ctx, 1, time.Second); err != nil {
		t.Fatalf("Wait(1) error = %v", err)
	}
	if err := p.Wait(ctx, 2, time.Second); err != nil {
		t.Fatalf("Wait(2) error = %v", err)
	}
	if got := p.next[1]; !got.Equal(now.Add(time.Second)) {
		t.Errorf("next slot for 1 = %v", got)
	}
	if got := p.next[2]; !got.Equal(now.Add(time.Second)) {
		t.Errorf("next slot for 2 = %v", got)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if err := p.Wait(canceled, 1, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() on canceled context = %v", err)
	}
}

func TestLocalPacer_ZeroInterval(t *testing.T) {
	p := NewLocalPacer()
	for i := 0; i < 100; i++ {
		if err := p.Wait(context.Background(), 1, 0); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if len(p.next) != 0 {
		t.Errorf("zero interval reserved slots: %v", p.next)
	}
}
