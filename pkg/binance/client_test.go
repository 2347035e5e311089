package binance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riven-blade/pricedash/pkg/metrics"
	"github.com/riven-blade/pricedash/pkg/stream/streamtest"
)

func newTestClient(t *testing.T, server *streamtest.Server) *Client {
	t.Helper()
	c, err := NewClient(testConfig(server, 20*time.Millisecond, 5), WithManagerMetrics(metrics.New()))
	require.NoError(t, err)
	t.Cleanup(c.CloseAll)
	return c
}

const tickerPayload = `{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT","p":"-120.50","P":"-0.286","w":"42010.1",` +
	`"c":"42000.10","Q":"0.01","o":"42120.60","h":"42500.00","l":"41800.00","v":"1234.5","q":"51851852.1234",` +
	`"O":1699913600000,"C":1700000000000,"F":1,"L":100,"n":100}`

func TestClient_OnTickerDecodesEvent(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	got := make(chan *TickerEvent, 1)
	c.OnTicker("BTCUSDT", func(ev *TickerEvent) { got <- ev })
	require.Eventually(t, func() bool { return connectedCount(c.Manager()) == 1 }, waitFor, tick)

	server.Broadcast(`{"e":"24hrTicker",`) // 截断的消息被丢弃
	server.Broadcast(tickerPayload)

	select {
	case ev := <-got:
		assert.Equal(t, EventType24hrTicker, ev.EventType)
		assert.Equal(t, int64(1700000000123), ev.EventTime)
		assert.Equal(t, "BTCUSDT", ev.Symbol)
		assert.Equal(t, "-120.50", ev.PriceChange)
		assert.Equal(t, "-0.286", ev.PriceChangePercent)
		assert.Equal(t, "42000.10", ev.LastPrice)
		assert.Equal(t, "0.01", ev.LastQty)
		assert.Equal(t, "42120.60", ev.OpenPrice)
		assert.Equal(t, "51851852.1234", ev.QuoteVolume)
		assert.Equal(t, int64(1700000000000), ev.CloseTime)
	case <-time.After(waitFor):
		t.Fatal("ticker not delivered")
	}
	assert.Equal(t, []string{"/ws/btcusdt@ticker"}, server.Paths())
}

func TestClient_OnKlineDecodesEvent(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	got := make(chan *KlineEvent, 1)
	c.OnKline("ETHUSDT", "15m", func(ev *KlineEvent) { got <- ev })
	require.Eventually(t, func() bool { return connectedCount(c.Manager()) == 1 }, waitFor, tick)

	server.Broadcast(`{"e":"kline","E":1,"s":"ETHUSDT","k":{"t":100,"T":200,"s":"ETHUSDT","i":"15m",` +
		`"o":"3000","c":"3010","h":"3020","l":"2990","v":"10","n":5,"x":true,"q":"30050"}}`)

	select {
	case ev := <-got:
		assert.Equal(t, "15m", ev.Kline.Interval)
		assert.Equal(t, "3010", ev.Kline.Close)
		assert.True(t, ev.Kline.IsFinal)
		assert.Equal(t, int64(5), ev.Kline.TradeNum)
	case <-time.After(waitFor):
		t.Fatal("kline not delivered")
	}
	assert.Equal(t, []string{"/ws/ethusdt@kline_15m"}, server.Paths())
}

func TestClient_OnDepthLevelUpdate(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	got := make(chan *PartialDepthEvent, 1)
	c.OnDepthLevelUpdate("BNBBTC", 5, func(ev *PartialDepthEvent) { got <- ev })
	c.OnDepthLevelUpdate("BNBBTC", 7, func(ev *PartialDepthEvent) { t.Error("invalid level must not subscribe") })
	require.Eventually(t, func() bool { return connectedCount(c.Manager()) == 1 }, waitFor, tick)

	server.Broadcast(`{"lastUpdateId":160,"bids":[["0.0024","10"]],"asks":[["0.0026","100"]]}`)

	select {
	case ev := <-got:
		assert.Equal(t, int64(160), ev.LastUpdateID)
		assert.Equal(t, [][2]string{{"0.0024", "10"}}, ev.Bids)
		assert.Equal(t, [][2]string{{"0.0026", "100"}}, ev.Asks)
	case <-time.After(waitFor):
		t.Fatal("depth not delivered")
	}
	assert.Equal(t, 1, server.Accepted())
}

func TestClient_OnAllMiniTickers(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	got := make(chan []MiniTickerEvent, 1)
	c.OnAllMiniTickers(func(evs []MiniTickerEvent) { got <- evs })
	require.Eventually(t, func() bool { return connectedCount(c.Manager()) == 1 }, waitFor, tick)

	server.Broadcast(`[{"e":"24hrMiniTicker","s":"BTCUSDT","c":"42000"},{"e":"24hrMiniTicker","s":"ETHUSDT","c":"3000"}]`)

	select {
	case evs := <-got:
		require.Len(t, evs, 2)
		assert.Equal(t, "BTCUSDT", evs[0].Symbol)
		assert.Equal(t, "3000", evs[1].ClosePrice)
	case <-time.After(waitFor):
		t.Fatal("mini tickers not delivered")
	}
	assert.Equal(t, []string{"/ws/!miniTicker@arr"}, server.Paths())
}

func TestClient_TypedDecodeFailureSkipsCallback(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	got := make(chan *TradeEvent, 2)
	c.OnTrade("BTCUSDT", func(ev *TradeEvent) { got <- ev })
	require.Eventually(t, func() bool { return connectedCount(c.Manager()) == 1 }, waitFor, tick)

	server.Broadcast(`["not","a","trade"]`)
	server.Broadcast(`{"e":"trade","t":7,"p":"42000","q":"0.5","m":true}`)

	select {
	case ev := <-got:
		assert.Equal(t, int64(7), ev.TradeID)
		assert.True(t, ev.IsBuyerMaker)
	case <-time.After(waitFor):
		t.Fatal("trade not delivered")
	}
	assert.Len(t, got, 0)
}

func TestClient_OnCombinedStream(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	got := make(chan *Message, 1)
	streams := []Stream{MiniTicker{Symbol: "BTCUSDT"}, AggTrade{Symbol: "BTCUSDT"}}
	c.OnCombinedStream(streams, func(msg *Message) { got <- msg })
	c.OnCombinedStream(nil, func(msg *Message) { t.Error("empty combined stream must not subscribe") })
	require.Eventually(t, func() bool { return connectedCount(c.Manager()) == 1 }, waitFor, tick)

	server.Broadcast(`{"stream":"btcusdt@aggTrade","data":{"e":"aggTrade","a":12,"p":"1.5"}}`)

	select {
	case msg := <-got:
		assert.Equal(t, AggTrade{Symbol: "BTCUSDT"}.Address(), msg.Stream)
		var ev AggTradeEvent
		require.NoError(t, msg.Decode(&ev))
		assert.Equal(t, int64(12), ev.AggTradeID)
		assert.Equal(t, "1.5", ev.Price)
	case <-time.After(waitFor):
		t.Fatal("combined message not delivered")
	}

	assert.True(t, c.CloseCombined(streams...))
	assert.Empty(t, c.Manager().Endpoints())
}

func TestClient_CloseSubscription(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	c.OnTicker("BTCUSDT", func(*TickerEvent) {})
	c.OnMiniTicker("BTCUSDT", func(*MiniTickerEvent) {})
	c.OnDepthUpdate("BTCUSDT", func(*DepthEvent) {})
	c.OnAggTrade("BTCUSDT", func(*AggTradeEvent) {})
	c.OnAllTickers(func([]TickerEvent) {})
	require.Eventually(t, func() bool { return connectedCount(c.Manager()) == 5 }, waitFor, tick)

	assert.True(t, c.Subscribed(Ticker{Symbol: "BTCUSDT"}))
	assert.True(t, c.CloseSubscription(Ticker{Symbol: "BTCUSDT"}))
	assert.False(t, c.Subscribed(Ticker{Symbol: "BTCUSDT"}))
	assert.True(t, c.Subscribed(MiniTicker{Symbol: "BTCUSDT"}))
	assert.False(t, c.Subscribed(Ticker{}), "invalid stream")
	assert.Len(t, c.Manager().Endpoints(), 4)

	c.CloseAll()
	assert.Empty(t, c.Manager().Endpoints())
}

func TestClient_NilHandlerIsRejected(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	c := newTestClient(t, server)

	assert.NotPanics(t, func() { c.OnTicker("BTCUSDT", nil) })
	assert.Empty(t, c.Manager().Endpoints())
}
