// Package ledger layers transactions and a record codec over a
// domain.KVStore.
package ledger

import (
	"context"
	"sort"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Tx is a buffered view over a store. Reads see the Tx's own writes first
// and fall through to the store otherwise. Nothing reaches the store until
// Commit; a Tx that is never committed leaves no trace.
type Tx struct {
	store  domain.KVStore
	writes map[string][]byte
	done   bool
}

// Begin opens a transaction over store.
func Begin(store domain.KVStore) *Tx {
	return &Tx{store: store, writes: make(map[string][]byte)}
}

// Get returns the buffered value for key, or the stored one.
func (t *Tx) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		return clone(v), nil
	}
	return t.store.Get(ctx, key)
}

// Has reports whether key exists either in the buffer or the store.
func (t *Tx) Has(ctx context.Context, key string) (bool, error) {
	if _, ok := t.writes[key]; ok {
		return true, nil
	}
	return t.store.Has(ctx, key)
}

// Set buffers a write.
func (t *Tx) Set(_ context.Context, key string, value []byte) error {
	if t.done {
		return errTxDone
	}
	t.writes[key] = clone(value)
	return nil
}

// Len is the number of buffered writes.
func (t *Tx) Len() int { return len(t.writes) }

// Commit applies all buffered writes in one batch. Writes are passed in key
// order so backends see a deterministic sequence.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	if len(t.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := make([]domain.KVWrite, 0, len(keys))
	for _, k := range keys {
		batch = append(batch, domain.KVWrite{Key: k, Value: t.writes[k]})
	}
	return t.store.Commit(ctx, batch)
}

// Discard drops every buffered write.
func (t *Tx) Discard() {
	t.done = true
	t.writes = nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
