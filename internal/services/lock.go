package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockBusy is returned when another operation holds the lock
var ErrLockBusy = errors.New("resource is locked by another operation")

// Locker hands out short-lived exclusive locks keyed by name. Lock does not wait.
// The lock only turns away concurrent duplicate requests early; writes are
// serialized by the row locks taken inside the database transaction.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// PlotLockKey is the lock name guarding a plot
func PlotLockKey(tenantID, plotID uint) string {
	return fmt.Sprintf("lock:plot:%d:%d", tenantID, plotID)
}

// CancelledSaleLockKey is the lock name guarding a cancelled sale's refund
func CancelledSaleLockKey(tenantID, id uint) string {
	return fmt.Sprintf("lock:cancelled_sale:%d:%d", tenantID, id)
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token checked on release
type RedisLocker struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisLocker creates a locker sharing the cache's connection
func NewRedisLocker(cache *RedisCache, log *zap.Logger) *RedisLocker {
	return &RedisLocker{client: cache.Client(), log: log}
}

// Lock acquires key for ttl or returns ErrLockBusy. While held, the ttl is
// extended every ttl/3 until unlock is called.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockBusy
	}

	stop := make(chan struct{})
	go keepAlive(stop, ttl/3, func(ctx context.Context) (bool, error) {
		n, err := extendScript.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int()
		return n == 1, err
	}, l.log.With(zap.String("key", key)))

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := unlockScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Warn("release lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}

// keepAlive calls extend every interval until stop is closed or the lock is lost
func keepAlive(stop <-chan struct{}, every time.Duration, extend func(context.Context) (bool, error), log *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			held, err := extend(ctx)
			cancel()
			if err != nil {
				log.Warn("extend lock failed", zap.Error(err))
				continue
			}
			if !held {
				log.Warn("lock expired before release")
				return
			}
		}
	}
}

// LocalLocker is an in-process Locker for single-instance deployments and tests
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLocker creates an empty LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// Lock acquires key or returns ErrLockBusy. ttl is ignored.
func (l *LocalLocker) Lock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrLockBusy
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
