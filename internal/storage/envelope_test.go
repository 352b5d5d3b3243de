package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/grocery-kart/internal/storage"
	"github.com/xenking/grocery-kart/internal/storage/memory"
)

func TestLoad_Envelope(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()

	type cartState struct {
		Items []string `json:"items"`
	}

	tests := []struct {
		name    string
		raw     string
		wantOK  bool
		wantErr bool
	}{
		{name: "valid", raw: `{"state":{"items":["a"]},"version":0}`, wantOK: true},
		{name: "null state", raw: `{"state":null,"version":0}`},
		{name: "future version", raw: `{"state":{},"version":3}`, wantErr: true},
		{name: "not json", raw: `items=a`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, kv.Set(ctx, "cart-storage", []byte(tt.raw)))

			var got cartState
			ok, err := storage.Load(ctx, kv, "cart-storage", &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestSave_WritesEnvelope(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()

	require.NoError(t, storage.Save(ctx, kv, "auth-storage", map[string]any{"token": nil}))

	raw, err := kv.Get(ctx, "auth-storage")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":{"token":null},"version":0}`, string(raw))
}
