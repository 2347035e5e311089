package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolStore_LoadFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStorage()
	store, err := NewSymbolStore(kv)
	require.NoError(t, err)

	defaults := store.Defaults()
	require.NotEmpty(t, defaults)
	assert.Equal(t, "BTCUSDT", defaults[0].Symbol)
	for _, s := range defaults {
		assert.NotEmpty(t, s.Symbol)
		assert.NotEmpty(t, s.Img)
	}

	assert.Equal(t, defaults, store.Load(ctx), "missing key")

	require.NoError(t, kv.Set(ctx, SymbolsKey, []byte("{broken"), 0))
	assert.Equal(t, defaults, store.Load(ctx), "unreadable value")

	require.NoError(t, kv.Close())
	assert.Equal(t, defaults, store.Load(ctx), "storage down")
}

func TestSymbolStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStorage()
	store, err := NewSymbolStore(kv)
	require.NoError(t, err)

	symbols := []Symbol{
		{Symbol: "BTCUSDT", Base: "BTC", Quote: "USDT", Name: "Bitcoin", Img: "btc.svg"},
		{Symbol: "PEPEUSDT", Img: "pepe.svg"},
	}
	require.NoError(t, store.Save(ctx, symbols))
	assert.Equal(t, symbols, store.Load(ctx))

	raw, err := kv.Get(ctx, "vue3-crypto-currencies")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"symbol":"BTCUSDT","base":"BTC","quote":"USDT","name":"Bitcoin","img":"btc.svg"},
		{"symbol":"PEPEUSDT","img":"pepe.svg"}]`, string(raw))

	require.NoError(t, store.Save(ctx, nil))
	assert.Empty(t, store.Load(ctx))
	raw, err = kv.Get(ctx, SymbolsKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestSymbolStore_Reset(t *testing.T) {
	ctx := context.Background()
	store, err := NewSymbolStore(NewMemoryStorage())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, []Symbol{{Symbol: "PEPEUSDT"}}))
	got, err := store.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Defaults(), got)
	assert.Equal(t, store.Defaults(), store.Load(ctx))
}

func TestSymbolStore_DefaultsAreCopies(t *testing.T) {
	store, err := NewSymbolStore(NewMemoryStorage())
	require.NoError(t, err)

	d := store.Defaults()
	d[0].Symbol = "CHANGED"
	assert.Equal(t, "BTCUSDT", store.Defaults()[0].Symbol)
}

func TestNewSymbolStore_NilStorage(t *testing.T) {
	_, err := NewSymbolStore(nil)
	assert.Error(t, err)
}
