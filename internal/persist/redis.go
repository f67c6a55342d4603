package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps partitions as plain keys under a prefix
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps a client. The store takes ownership and closes it.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "artemis:partition:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) Load(ctx context.Context, partition string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.prefix+partition).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", partition, err)
	}
	return data, nil
}

func (r *RedisStore) Save(ctx context.Context, partition string, data []byte) error {
	if err := r.client.Set(ctx, r.prefix+partition, data, 0).Err(); err != nil {
		return fmt.Errorf("save %s: %w", partition, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
