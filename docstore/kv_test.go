package docstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kvsUnderTest(t *testing.T) map[string]KVStore {
	sqlite, err := OpenSQLiteKV(filepath.Join(t.TempDir(), "data", "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]KVStore{
		"memory": NewMemoryKV(),
		"sqlite": sqlite,
	}
}

func Test_KV_GetSetRemove(t *testing.T) {
	for name, kv := range kvsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, _, err := kv.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, kv.Set(ctx, "k", "v1"))
			v, ver, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v1", v)
			assert.Equal(t, int64(1), ver)

			require.NoError(t, kv.Set(ctx, "k", "v2"))
			v, ver, err = kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", v)
			assert.Equal(t, int64(2), ver)

			require.NoError(t, kv.Remove(ctx, "k"))
			_, _, err = kv.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, kv.Remove(ctx, "k"))
		})
	}
}

func Test_KV_CompareAndSwap(t *testing.T) {
	for name, kv := range kvsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, kv.CompareAndSwap(ctx, "k", "v1", 0))
			assert.ErrorIs(t, kv.CompareAndSwap(ctx, "k", "again", 0), ErrVersionConflict)

			require.NoError(t, kv.CompareAndSwap(ctx, "k", "v2", 1))
			assert.ErrorIs(t, kv.CompareAndSwap(ctx, "k", "stale", 1), ErrVersionConflict)

			v, ver, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v2", v)
			assert.Equal(t, int64(2), ver)
		})
	}
}

func Test_SQLiteKV_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	kv, err := OpenSQLiteKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "k", "v"))
	require.NoError(t, kv.Close())

	kv, err = OpenSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()

	v, _, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func Test_SQLiteKV_RejectsSecondOpener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	kv, err := OpenSQLiteKV(path)
	require.NoError(t, err)
	defer kv.Close()

	_, err = OpenSQLiteKV(path)
	assert.ErrorIs(t, err, ErrLocked)
}
