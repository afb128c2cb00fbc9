package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Defaults for the user cache connection. The cache sits in front of every
// user read, so its timeouts are short: a slow Redis should cost a request
// a fraction of a second before the read falls through to Postgres.
const (
	DefaultCacheTTL = 5 * time.Minute

	defaultRedisDialTimeout = time.Second
	defaultRedisIOTimeout   = 500 * time.Millisecond
	defaultRedisPingTimeout = 2 * time.Second
	defaultRedisPoolSize    = 10
	defaultRedisConnIdle    = 5 * time.Minute
)

var errRedisAddr = errors.New("redis addr is required")

// RedisConfig describes the connection backing the user cache. Zero fields
// take the defaults above.
type RedisConfig struct {
	Addr string

	// CacheTTL bounds how long an entry, or a deletion tombstone, lives.
	CacheTTL time.Duration

	DialTimeout time.Duration
	// IOTimeout applies to both reads and writes.
	IOTimeout   time.Duration
	PingTimeout time.Duration
	PoolSize    int
}

// TTL is the entry lifetime to hand to the cache.
func (c RedisConfig) TTL() time.Duration {
	if c.CacheTTL > 0 {
		return c.CacheTTL
	}
	return DefaultCacheTTL
}

func (c RedisConfig) options() *redis.Options {
	pool := c.PoolSize
	if pool <= 0 {
		pool = defaultRedisPoolSize
	}
	ioTimeout := pickDuration(c.IOTimeout, defaultRedisIOTimeout)
	// A failed cache command degrades to a Postgres read, so it is never
	// retried and request deadlines cut it short. Waiting longer for a pooled
	// conn than for the command itself is pointless.
	return &redis.Options{
		Addr:                  c.Addr,
		DialTimeout:           pickDuration(c.DialTimeout, defaultRedisDialTimeout),
		ReadTimeout:           ioTimeout,
		WriteTimeout:          ioTimeout,
		PoolSize:              pool,
		PoolTimeout:           2 * ioTimeout,
		ConnMaxIdleTime:       defaultRedisConnIdle,
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
	}
}

// OpenRedis connects the user cache client and checks it with PING. The
// client is closed again if the ping fails.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errRedisAddr
	}
	rdb := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, pickDuration(cfg.PingTimeout, defaultRedisPingTimeout))
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func pickDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
