// Package lease holds a Redis lease that makes sure only one daemon writes
// to the store at a time.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrNotHeld = errors.New("lease not held")

// Only the owner may extend or drop the key.
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type Lease struct {
	client redis.Cmdable
	key    string
	owner  string
	ttl    time.Duration
	logger zerolog.Logger

	held atomic.Bool
}

// New creates a lease on key. The owner token is unique per process.
func New(client redis.Cmdable, key string, ttl time.Duration, logger zerolog.Logger) *Lease {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Lease{
		client: client,
		key:    key,
		owner:  uuid.NewString(),
		ttl:    ttl,
		logger: logger,
	}
}

func (l *Lease) Owner() string { return l.owner }

// TryAcquire takes the lease if it is free.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	l.held.Store(ok)
	return ok, nil
}

// Acquire blocks until the lease is taken or ctx ends.
func (l *Lease) Acquire(ctx context.Context, retry time.Duration) error {
	if retry <= 0 {
		retry = l.ttl / 3
	}
	for {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			l.logger.Warn().Err(err).Msg("lease acquire failed")
		}
		if ok {
			l.logger.Info().Str("key", l.key).Str("owner", l.owner).Msg("lease acquired")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry):
		}
	}
}

// Renew extends the lease. It fails with ErrNotHeld once another owner took
// the key.
func (l *Lease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	if n == 0 {
		l.held.Store(false)
		return ErrNotHeld
	}
	return nil
}

// Keep renews the lease every ttl/3 until ctx ends. If the lease is lost,
// or cannot be renewed before it would expire, onLost is called and Keep
// returns.
func (l *Lease) Keep(ctx context.Context, onLost func(error)) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	lastRenew := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Renew(ctx)
			if err == nil {
				lastRenew = time.Now()
				continue
			}
			if errors.Is(err, ErrNotHeld) || time.Since(lastRenew) >= l.ttl {
				l.held.Store(false)
				l.logger.Error().Err(err).Str("key", l.key).Msg("lease lost")
				if onLost != nil {
					onLost(err)
				}
				return
			}
			l.logger.Warn().Err(err).Msg("lease renew failed, retrying")
		}
	}
}

// Release drops the lease if this process still owns it.
func (l *Lease) Release(ctx context.Context) error {
	l.held.Store(false)
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

// Held reports whether the last acquire or renew succeeded.
func (l *Lease) Held() bool { return l.held.Load() }

// Check is a readiness check: it fails when the lease is not held.
func (l *Lease) Check(ctx context.Context) error {
	if !l.Held() {
		return ErrNotHeld
	}
	return nil
}
