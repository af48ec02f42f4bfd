package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pacer spaces sends for one account. Wait blocks until the account may
// send its next message.
type Pacer interface {
	Wait(ctx context.Context, accountID int64, interval time.Duration) error
}

// LocalPacer keeps the next free slot per account in process memory
type LocalPacer struct {
	mu   sync.Mutex
	next map[int64]time.Time
	now  func() time.Time
}

// NewLocalPacer creates an in-process pacer
func NewLocalPacer() *LocalPacer {
	return &LocalPacer{next: make(map[int64]time.Time), now: time.Now}
}

// Wait reserves the account's next slot and sleeps until it starts
func (p *LocalPacer) Wait(ctx context.Context, accountID int64, interval time.Duration) error {
	if interval <= 0 {
		return ctx.Err()
	}

	p.mu.Lock()
	now := p.now()
	slot := p.next[accountID]
	if slot.Before(now) {
		slot = now
	}
	p.next[accountID] = slot.Add(interval)
	p.mu.Unlock()

	return sleep(ctx, slot.Sub(now))
}

// RedisPacer shares slots between workers. A slot is a key that lives for
// one interval; whoever sets it may send.
type RedisPacer struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisPacer creates a pacer backed by rdb
func NewRedisPacer(rdb *redis.Client, prefix string) *RedisPacer {
	return &RedisPacer{rdb: rdb, prefix: prefix}
}

func (p *RedisPacer) key(accountID int64) string {
	return fmt.Sprintf("%s:pace:%d", p.prefix, accountID)
}

// Wait polls the account slot until it can claim it
func (p *RedisPacer) Wait(ctx context.Context, accountID int64, interval time.Duration) error {
	if interval <= 0 {
		return ctx.Err()
	}

	key := p.key(accountID)
	for {
		ok, err := p.rdb.SetNX(ctx, key, 1, interval).Result()
		if err != nil {
			return fmt.Errorf("failed to claim pacing slot: %w", err)
		}
		if ok {
			return nil
		}

		ttl, err := p.rdb.PTTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to read pacing slot: %w", err)
		}
		// Negative TTLs mean the key vanished or has no expiry
		if ttl <= 0 || ttl > interval {
			ttl = interval
		}
		if err := sleep(ctx, ttl); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
