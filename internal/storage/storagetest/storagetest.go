// Package storagetest checks storage.KV implementations against the shared
// contract.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/grocery-kart/internal/storage"
)

// Run exercises kv. The store must start empty.
func Run(t *testing.T, kv storage.KV) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := kv.Get(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "cart-storage", []byte(`{"state":{"items":[]},"version":0}`)))

		got, err := kv.Get(ctx, "cart-storage")
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":{"items":[]},"version":0}`, string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, kv.Set(ctx, "token", []byte(`"a"`)))
		require.NoError(t, kv.Set(ctx, "token", []byte(`"b"`)))

		got, err := kv.Get(ctx, "token")
		require.NoError(t, err)
		assert.Equal(t, `"b"`, string(got))
	})

	t.Run("DeleteMany", func(t *testing.T) {
		for _, key := range []string{"k1", "k2", "k3"} {
			require.NoError(t, kv.Set(ctx, key, []byte(`1`)))
		}

		require.NoError(t, kv.Delete(ctx, "k1", "k2", "never-set"))

		for _, key := range []string{"k1", "k2"} {
			_, err := kv.Get(ctx, key)
			assert.ErrorIs(t, err, storage.ErrNotFound, key)
		}
		_, err := kv.Get(ctx, "k3")
		assert.NoError(t, err)
	})

	t.Run("DeleteNothing", func(t *testing.T) {
		assert.NoError(t, kv.Delete(ctx))
	})

	t.Run("Envelope", func(t *testing.T) {
		type state struct {
			Items []int `json:"items"`
		}
		require.NoError(t, storage.Save(ctx, kv, "order-storage", state{Items: []int{1, 2}}))

		var got state
		ok, err := storage.Load(ctx, kv, "order-storage", &got)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []int{1, 2}, got.Items)

		require.NoError(t, kv.Delete(ctx, "order-storage"))
		ok, err = storage.Load(ctx, kv, "order-storage", &got)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
