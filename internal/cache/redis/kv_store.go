package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// KVStore implements domain.KVStore with plain string keys under "kv:".
// Commit wraps all writes in MULTI/EXEC.
type KVStore struct {
	c *Client
}

// NewKVStore creates a KVStore backed by the given Client.
func NewKVStore(c *Client) *KVStore {
	return &KVStore{c: c}
}

func (s *KVStore) key(k string) string { return s.c.Key("kv", k) }

// Get returns domain.ErrNotFound when the key does not exist.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.c.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: kv get %s: %w", key, err)
	}
	return v, nil
}

func (s *KVStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.c.rdb.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: kv has %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.c.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: kv set %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Commit(ctx context.Context, writes []domain.KVWrite) error {
	if len(writes) == 0 {
		return nil
	}
	pipe := s.c.rdb.TxPipeline()
	for _, w := range writes {
		pipe.Set(ctx, s.key(w.Key), w.Value, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: kv commit %d writes: %w", len(writes), err)
	}
	return nil
}

// Close is a no-op; the connection is owned by Client.
func (s *KVStore) Close() error { return nil }

// Compile-time interface check.
var _ domain.KVStore = (*KVStore)(nil)
