// Package queue implements the Redis-backed queue store client.
//
// The queue store holds the two append-only location queues as Redis lists
// and backs the distributed tick lock. Producers append with RPUSH; the
// atomic drainer is the only component permitted to clear the list keys.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Default queue key names.
const (
	DefaultGPSKey    = "gps:history:global"
	DefaultMobileKey = "mobile:history:global"
)

// DefaultTimeout is the default per-operation timeout.
const DefaultTimeout = 5 * time.Second

// Config configures the queue store client.
type Config struct {
	// Addr is the Redis host:port (required unless URL is set).
	Addr string
	// URL is a Redis connection URL; takes precedence over Addr.
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Password is the Redis AUTH password (ignored when URL is set).
	Password string
	// DB is the Redis database number (ignored when URL is set).
	DB int
	// KeyPrefix is prepended to every queue and lock key (optional).
	KeyPrefix string
	// Timeout is the per-operation timeout (default 5s).
	Timeout time.Duration
}

// Client is the queue store client. All list mutation on the queue keys
// must go through this client; no other component touches them.
type Client struct {
	config Config
	rdb    *goredis.Client
}

// New creates a queue store client from the given config.
func New(cfg Config) (*Client, error) {
	var opts *goredis.Options
	if cfg.URL != "" {
		parsed, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("queue: invalid URL: %w", err)
		}
		opts = parsed
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("queue: addr or URL is required")
		}
		opts = &goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		config: cfg,
		rdb:    goredis.NewClient(opts),
	}, nil
}

// Key applies the configured prefix to a key name.
func (c *Client) Key(name string) string {
	return c.config.KeyPrefix + name
}

// Len returns the length of the list at key.
func (c *Client) Len(ctx context.Context, key string) (int64, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: llen %s: %w", key, err)
	}
	return n, nil
}

// RangeAll reads every element of the list at key, in insertion order.
func (c *Client) RangeAll(ctx context.Context, key string) ([]string, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	vals, err := c.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: lrange %s: %w", key, err)
	}
	return vals, nil
}

// Delete removes the key entirely. Returns whether a key was deleted.
// An RPUSH racing after the DEL creates a fresh list, so concurrent
// producers are never blocked by a drain.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	n, err := c.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("queue: del %s: %w", key, err)
	}
	return n > 0, nil
}

// RPushMany appends values to the list at key.
func (c *Client) RPushMany(ctx context.Context, key string, vals []string) error {
	if len(vals) == 0 {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	if err := c.rdb.RPush(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("queue: rpush %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity to the queue store.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: ping: %w", err)
	}
	return nil
}

// SetNX writes val at key with a TTL only if the key is absent.
// Returns whether the write won. Backs lock acquisition.
func (c *Client) SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	ok, err := c.rdb.SetNX(ctx, key, val, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("queue: setnx %s: %w", key, err)
	}
	return ok, nil
}

// Eval runs a server-side Lua script. Backs the atomic lock release and the
// single-roundtrip extract-and-clear.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	res, err := c.rdb.Eval(ctx, script, keys, args...).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("queue: eval: %w", err)
	}
	return res, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.Timeout)
}
