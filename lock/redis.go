package lock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL    = 30 * time.Second
	DefaultPrefix = "docvec:lock:"
)

// Token-checked scripts so an owner never releases or extends a lock that
// expired and was taken by someone else.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisOption configures a Redis locker.
type RedisOption func(*Redis) error

// WithTTL sets the lock expiry. Held locks are extended every TTL/3.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) error {
		if ttl < 3*time.Millisecond {
			return fmt.Errorf("lock ttl too small: %v", ttl)
		}
		r.ttl = ttl
		return nil
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) error {
		r.prefix = prefix
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) error {
		r.logger = logger
		return nil
	}
}

// Redis is a Locker backed by Redis SET NX PX.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis locker on an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	r := &Redis{
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "lock")
	return r, nil
}

// NewRedisClient connects to Redis. Accepts redis:// and rediss:// URLs or a
// bare host:port, and pings the server before returning.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	var opt *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		var err error
		opt, err = redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
	} else {
		opt = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// TryAcquire takes the lock for key. The lock is kept alive in the
// background until released.
func (r *Redis) TryAcquire(ctx context.Context, key string) (Release, error) {
	fullKey := r.prefix + key
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, fullKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(fullKey, token, stop, done)

	var (
		once       sync.Once
		releaseErr error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
			if err := releaseScript.Run(ctx, r.client, []string{fullKey}, token).Err(); err != nil {
				releaseErr = fmt.Errorf("releasing lock %s: %w", key, err)
			}
		})
		return releaseErr
	}, nil
}

func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			n, err := extendScript.Run(ctx, r.client, []string{key}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.logger.Warn("failed to extend lock", "key", key, "err", err)
				continue
			}
			if n == 0 {
				r.logger.Warn("lock lost", "key", key)
				return
			}
		}
	}
}
