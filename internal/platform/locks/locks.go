package locks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"

	"github.com/campuschapel/attendance-backend/internal/platform/logger"
)

// ErrNotObtained reports that another holder owns the lock.
var ErrNotObtained = errors.New("lock not obtained")

// Guard is a held lock. Callers release it when the critical section ends.
type Guard interface {
	Release(ctx context.Context) error
}

// IngestLocker serializes ingests that target the same gathering/level pair.
// The relational layer stays correct without it; the lock only avoids
// wasted partition writes when two committers race.
type IngestLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Guard, error)
}

type redisLocker struct {
	log    *logger.Logger
	rdb    *goredis.Client
	locker *redislock.Client
}

// NewIngestLocker connects to REDIS_ADDR. An empty REDIS_ADDR yields a
// no-op locker so single-node deployments run without Redis.
func NewIngestLocker(log *logger.Logger) (IngestLocker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		log.Info("REDIS_ADDR unset; ingest locking disabled")
		return noopLocker{}, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisLocker{
		log:    log.With("service", "IngestLocker"),
		rdb:    rdb,
		locker: redislock.New(rdb),
	}, nil
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Guard, error) {
	if l == nil || l.locker == nil {
		return nil, fmt.Errorf("ingest locker not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("lock key required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	lock, err := l.locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(250*time.Millisecond), 8),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %q: %w", key, err)
	}
	return redisGuard{lock: lock}, nil
}

type redisGuard struct {
	lock *redislock.Lock
}

func (g redisGuard) Release(ctx context.Context) error {
	if g.lock == nil {
		return nil
	}
	if err := g.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
		return err
	}
	return nil
}

type noopLocker struct{}

func (noopLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Guard, error) {
	return noopGuard{}, nil
}

type noopGuard struct{}

func (noopGuard) Release(ctx context.Context) error { return nil }
