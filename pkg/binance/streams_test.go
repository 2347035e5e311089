package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamAddresses(t *testing.T) {
	tests := []struct {
		name   string
		stream Stream
		want   StreamAddress
		kind   StreamKind
	}{
		{"depth", Depth{Symbol: "BTCUSDT"}, "btcusdt@depth", KindDepth},
		{"depth level", DepthLevel{Symbol: "BTCUSDT", Level: 10}, "btcusdt@depth10", KindDepthLevel},
		{"kline", Kline{Symbol: "ETHUSDT", Interval: "1h"}, "ethusdt@kline_1h", KindKline},
		{"agg trade", AggTrade{Symbol: "BNBBTC"}, "bnbbtc@aggTrade", KindAggTrade},
		{"trade", Trade{Symbol: "BNBBTC"}, "bnbbtc@trade", KindTrade},
		{"ticker", Ticker{Symbol: "BTCUSDT"}, "btcusdt@ticker", KindTicker},
		{"mini ticker", MiniTicker{Symbol: "XRPUSDT"}, "xrpusdt@miniTicker", KindMiniTicker},
		{"all mini tickers", AllMiniTickers{}, "!miniTicker@arr", KindAllMiniTickers},
		{"all tickers", AllTickers{}, "!ticker@arr", KindAllTickers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stream.Address())
			assert.Equal(t, tt.kind, tt.stream.Kind())
			assert.NoError(t, tt.stream.Validate())
		})
	}
}

func TestStreamAddressIgnoresSymbolCase(t *testing.T) {
	assert.Equal(t, Ticker{Symbol: "btcusdt"}.Address(), Ticker{Symbol: "BTCUSDT"}.Address())
	assert.Equal(t, Ticker{Symbol: "BtcUsdt"}.Address(), Ticker{Symbol: " BTCUSDT "}.Address())
	assert.Equal(t, Kline{Symbol: "ethusdt", Interval: "1m"}.Address(), KlineMinutes("ETHUSDT", 1).Address())
}

func TestStreamValidate(t *testing.T) {
	assert.ErrorIs(t, Ticker{}.Validate(), ErrEmptySymbol)
	assert.ErrorIs(t, Depth{Symbol: "  "}.Validate(), ErrEmptySymbol)
	assert.ErrorIs(t, DepthLevel{Symbol: "BTCUSDT", Level: 7}.Validate(), ErrInvalidLevel)
	assert.ErrorIs(t, DepthLevel{Level: 5}.Validate(), ErrEmptySymbol)
	assert.ErrorIs(t, Kline{Symbol: "BTCUSDT"}.Validate(), ErrInvalidInterval)
	assert.NoError(t, DepthLevel{Symbol: "BTCUSDT", Level: 20}.Validate())
}

func TestCombine(t *testing.T) {
	assert.Equal(t, StreamAddress("btcusdt@ticker/ethusdt@depth5"),
		Combine(Ticker{Symbol: "BTCUSDT"}.Address(), DepthLevel{Symbol: "ETHUSDT", Level: 5}.Address()))
	assert.Equal(t, StreamAddress(""), Combine())

	address, err := CombineStreams(Ticker{Symbol: "BTCUSDT"}, AllMiniTickers{})
	require.NoError(t, err)
	assert.Equal(t, StreamAddress("btcusdt@ticker/!miniTicker@arr"), address)

	_, err = CombineStreams()
	assert.ErrorIs(t, err, ErrNoStreams)

	_, err = CombineStreams(Ticker{Symbol: "BTCUSDT"}, Trade{})
	assert.ErrorIs(t, err, ErrEmptySymbol)
}

func TestEndpoint(t *testing.T) {
	address := Ticker{Symbol: "BTCUSDT"}.Address()
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@ticker",
		Endpoint(DefaultBaseURL, DefaultCombinedBaseURL, address, false))
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker",
		Endpoint(DefaultBaseURL, DefaultCombinedBaseURL, address, true))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultCombinedBaseURL, cfg.CombinedBaseURL)
	assert.Equal(t, DefaultReconnectInterval, cfg.ReconnectInterval)

	sc := DefaultConfig().StreamConfig()
	assert.Equal(t, DefaultReconnectInterval, sc.ReconnectInterval)
	assert.Equal(t, DefaultMaxReconnectAttempts, sc.MaxReconnectAttempts)

	assert.Error(t, (&Config{BaseURL: "https://example.com/ws/"}).Validate())
	assert.Error(t, (&Config{MaxReconnectAttempts: -1}).Validate())
}
