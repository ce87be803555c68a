// Package redis is the byte-oriented key/value client behind the candidate
// block cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("redis: key not found")

const (
	defaultDialTimeout      = 5 * time.Second
	defaultOperationTimeout = 250 * time.Millisecond
)

// Config holds Redis connection configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int // 0 uses the go-redis default

	// DialTimeout bounds the startup ping.
	DialTimeout time.Duration
	// OperationTimeout bounds each Get/Set so a slow cache falls through to postgres quickly.
	OperationTimeout time.Duration
}

// Addr is the host:port the client dials
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() *redis.Options {
	dial := c.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}
	return &redis.Options{
		Addr:        c.Addr(),
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		DialTimeout: dial,
	}
}

func (c Config) operationTimeout() time.Duration {
	if c.OperationTimeout <= 0 {
		return defaultOperationTimeout
	}
	return c.OperationTimeout
}

// Client wraps go-redis with per-operation deadlines for the candidate cache
type Client struct {
	rdb       *redis.Client
	logger    ectologger.Logger
	opTimeout time.Duration
}

// NewClient dials Redis and pings it within the dial timeout.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	opts := cfg.options()
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"addr": opts.Addr,
		"db":   cfg.DB,
	}).Info("Connected to Redis")

	return &Client{
		rdb:       rdb,
		logger:    logger,
		opTimeout: cfg.operationTimeout(),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get retrieves a value by key. A missing key returns ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return val, err
}

// Set stores value under key. A zero ttl keeps the key until evicted.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	return c.rdb.Set(ctx, key, value, ttl).Err()
}
