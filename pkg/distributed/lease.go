// Package distributed holds coordination primitives shared between bot
// instances through Redis.
package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the lease.
var ErrHeld = errors.New("lease held by another instance")

// Only the holder may extend or drop the key.
var (
	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)
)

// Lease is an expiring Redis key owned by one process. While held it is
// renewed at a third of its TTL; Lost is closed if a renewal finds the key
// gone or owned by someone else.
type Lease struct {
	client *redis.Client
	key    string
	holder string
	ttl    time.Duration

	mu      sync.Mutex
	stop    chan struct{}
	lost    chan struct{}
	stopped sync.WaitGroup
}

func NewLease(client *redis.Client, key string, ttl time.Duration) *Lease {
	return &Lease{
		client: client,
		key:    key,
		holder: uuid.NewString(),
		ttl:    ttl,
		lost:   make(chan struct{}),
	}
}

// Holder identifies this process in the lease key.
func (l *Lease) Holder() string { return l.holder }

// Acquire takes the lease or returns ErrHeld without waiting.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.holder, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return ErrHeld
	}

	l.mu.Lock()
	l.stop = make(chan struct{})
	l.mu.Unlock()

	l.stopped.Add(1)
	go l.renew(l.stop)
	return nil
}

// Lost is closed when the lease could not be renewed.
func (l *Lease) Lost() <-chan struct{} { return l.lost }

func (l *Lease) renew(stop <-chan struct{}) {
	defer l.stopped.Done()

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.holder, l.ttl.Milliseconds()).Int()
			cancel()
			// A transient error is retried on the next tick; the key only
			// lapses after the full TTL.
			if err == nil && n == 0 {
				close(l.lost)
				return
			}
		}
	}
}

// Release stops renewal and deletes the key if this process still holds it.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	stop := l.stop
	l.stop = nil
	l.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	l.stopped.Wait()

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.holder).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	return nil
}
