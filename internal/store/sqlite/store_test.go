package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
	"github.com/alanyoungcy/predictmarket/internal/store/sqlite"
)

func TestStore_GetSetHas(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	require.NoError(t, s.Set(ctx, "k", []byte("v2")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	has, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStore_CommitBatch(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	tx := ledger.Begin(s)
	require.NoError(t, tx.Set(ctx, "a", []byte("1")))
	require.NoError(t, tx.Set(ctx, "b", []byte("2")))
	require.NoError(t, tx.Commit(ctx))

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, []domain.KVWrite{{Key: "state", Value: []byte(`{"current_epoch":3}`)}}))
	require.NoError(t, s.Close())

	s, err = sqlite.Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "state")
	require.NoError(t, err)
	assert.JSONEq(t, `{"current_epoch":3}`, string(got))
}
