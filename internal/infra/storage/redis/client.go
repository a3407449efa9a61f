// Package redis publishes fetched transactions to Redis streams.
package redis

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

// conn is the subset of *redis.Client the publisher uses.
type conn interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

type client struct {
	conn      conn
	keyPrefix string
	maxLen    int64
}

func (c *client) Close() error {
	return c.conn.Close()
}

type config struct {
	keyPrefix string
	maxLen    int64
}

// Option configures the client returned by NewClient.
type Option func(*config)

// NewClient connects to Redis and verifies the connection with a PING.
//
// Defaults:
//   - keyPrefix: "txhistory"
//   - maxLen:    0 (streams are not trimmed)
func NewClient(ctx context.Context, addr, username, password string, db int, opts ...Option) (*client, error) {
	cfg := config{
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       db,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &client{
		conn:      conn,
		keyPrefix: cfg.keyPrefix,
		maxLen:    cfg.maxLen,
	}, nil
}

// WithKeyPrefix sets the namespace of the stream keys.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithMaxLen caps every stream at approximately n entries. Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(c *config) {
		c.maxLen = n
	}
}
