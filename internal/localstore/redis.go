package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"cart-sync/internal/model"
)

// RedisStore keeps records as string values, one per key, under a prefix.
// Lets several shopper replicas share one pending cart per shopper.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures the underlying redis client.
type RedisOption func(*redis.Options)

// WithPassword sets the AUTH password.
func WithPassword(password string) RedisOption {
	return func(o *redis.Options) {
		o.Password = password
	}
}

// WithDB selects the logical database.
func WithDB(db int) RedisOption {
	return func(o *redis.Options) {
		o.DB = db
	}
}

// NewRedisStore connects to addr. The connection is checked with PING so a
// misconfigured address fails at startup, not on the first cart operation.
func NewRedisStore(ctx context.Context, addr, prefix string, opts ...RedisOption) (*RedisStore, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	options := &redis.Options{Addr: addr}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", addr, err)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Read(ctx context.Context, key string) ([]model.LineItem, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []model.LineItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading pending cart: %w", err)
	}
	return decodeItems(data), nil
}

func (s *RedisStore) Write(ctx context.Context, key string, items []model.LineItem) error {
	if len(items) == 0 {
		if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
			return fmt.Errorf("clearing pending cart: %w", err)
		}
		return nil
	}

	data, err := encodeItems(items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("writing pending cart: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
