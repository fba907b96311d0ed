package favorites

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pechincha/internal/logging"
	"pechincha/migrations"
)

func newSQLiteStore(t *testing.T) (*Store, *SQLiteKV) {
	t.Helper()
	ctx := context.Background()
	kv, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "favorites.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	require.NoError(t, kv.Migrate(ctx, migrations.SQLite))
	return NewStore(kv, logging.Discard()), kv
}

func TestToggleTwiceRestoresState(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	assert.False(t, store.IsFavorite(ctx, "dev-1", "p1"))

	on, err := store.Toggle(ctx, "dev-1", "p1")
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, store.IsFavorite(ctx, "dev-1", "p1"))

	on, err = store.Toggle(ctx, "dev-1", "p1")
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, store.IsFavorite(ctx, "dev-1", "p1"))
	assert.Empty(t, store.List(ctx, "dev-1"))
}

func TestListKeepsInsertionOrderPerDevice(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	for _, id := range []string{"b", "a", "c"} {
		_, err := store.Toggle(ctx, "dev-1", id)
		require.NoError(t, err)
	}
	_, err := store.Toggle(ctx, "dev-2", "z")
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, store.List(ctx, "dev-1"))
	assert.Equal(t, []string{"z"}, store.List(ctx, "dev-2"))
	assert.Empty(t, store.List(ctx, "dev-3"))
}

func TestPurgeRemovesFromEveryDevice(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	for _, dev := range []string{"dev-1", "dev-2"} {
		for _, id := range []string{"p1", "p2"} {
			_, err := store.Toggle(ctx, dev, id)
			require.NoError(t, err)
		}
	}
	require.NoError(t, store.Purge(ctx, "p1"))

	assert.Equal(t, []string{"p2"}, store.List(ctx, "dev-1"))
	assert.Equal(t, []string{"p2"}, store.List(ctx, "dev-2"))
}

func TestCorruptValueReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	store, kv := newSQLiteStore(t)

	require.NoError(t, kv.Put(ctx, deviceKey("dev-1"), "not json"))
	assert.Empty(t, store.List(ctx, "dev-1"))

	require.NoError(t, kv.Put(ctx, deviceKey("dev-2"), `["p1", "", 42, "p1"]`))
	assert.Equal(t, []string{"p1", "42"}, store.List(ctx, "dev-2"))
}

func TestToggleRequiresDevice(t *testing.T) {
	store, _ := newSQLiteStore(t)
	_, err := store.Toggle(context.Background(), " ", "p1")
	assert.ErrorIs(t, err, ErrNoDevice)
}
