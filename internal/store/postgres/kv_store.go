package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

const upsertEntry = `
	INSERT INTO kv_entries (key, value, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (key) DO UPDATE SET
		value      = EXCLUDED.value,
		updated_at = NOW()`

// KVStore implements domain.KVStore over the kv_entries table.
type KVStore struct {
	pool *pgxpool.Pool
}

// NewKVStore creates a KVStore backed by the given connection pool.
func NewKVStore(pool *pgxpool.Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Get returns domain.ErrNotFound for a missing key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM kv_entries WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has %s: %w", key, err)
	}
	return exists, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, upsertEntry, key, value); err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

// Commit sends every write as one batch inside a single SQL transaction.
func (s *KVStore) Commit(ctx context.Context, writes []domain.KVWrite) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, w := range writes {
		batch.Queue(upsertEntry, w.Key, w.Value)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range writes {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: commit item %d (%s): %w", i, writes[i].Key, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by Client.
func (s *KVStore) Close() error { return nil }

// Compile-time interface check.
var _ domain.KVStore = (*KVStore)(nil)
