package gateway

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState is the circuit state of one gateway
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker tracks consecutive failures of a gateway. After maxFailures
// it opens for resetTimeout; the next attempt after that is a half-open
// probe that closes it on success or reopens it on failure.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	log          zerolog.Logger

	mu           sync.Mutex
	state        BreakerState
	failures     int
	lastFailTime time.Time
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, maxFailures int, resetTimeout time.Duration, log zerolog.Logger) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		log:          log,
	}
}

// Healthy reports whether the gateway should receive traffic
func (b *Breaker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && b.now().Sub(b.lastFailTime) >= b.resetTimeout {
		b.state = BreakerHalfOpen
		b.log.Info().Str("gateway", b.name).Msg("circuit breaker half-open")
	}
	return b.state != BreakerOpen
}

// Record feeds the outcome of one send attempt
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state != BreakerClosed {
			b.log.Info().Str("gateway", b.name).Msg("circuit breaker closed")
		}
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailTime = b.now()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.maxFailures {
			b.open()
		}
	case BreakerHalfOpen:
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = BreakerOpen
	b.log.Warn().
		Str("gateway", b.name).
		Int("failures", b.failures).
		Dur("reset_timeout", b.resetTimeout).
		Msg("circuit breaker open")
}

// State returns the current state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
