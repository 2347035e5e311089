package binance

import (
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/riven-blade/pricedash/pkg/metrics"
	"github.com/riven-blade/pricedash/pkg/stream/streamtest"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testConfig(server *streamtest.Server, interval time.Duration, maxAttempts int) *Config {
	return &Config{
		BaseURL:              server.URL() + "/ws/",
		CombinedBaseURL:      server.URL() + "/stream?streams=",
		ReconnectInterval:    interval,
		MaxReconnectAttempts: maxAttempts,
	}
}

func newTestManager(t *testing.T, cfg *Config) *SubscriptionManager {
	t.Helper()
	sm, err := NewSubscriptionManager(cfg, WithManagerMetrics(metrics.New()))
	require.NoError(t, err)
	t.Cleanup(sm.CloseAll)
	return sm
}

// recorder 按到达顺序记录回调收到的消息
type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) callback(name string) Callback {
	return func(msg *Message) {
		r.mu.Lock()
		r.msgs = append(r.msgs, name+":"+string(msg.Data))
		r.mu.Unlock()
	}
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func connectedCount(sm *SubscriptionManager) int {
	n := 0
	for _, s := range sm.Stats() {
		if s.State == "connected" {
			n++
		}
	}
	return n
}

func TestSubscribe_DeduplicatesBySymbolCase(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	rec := &recorder{}
	sm.Subscribe(rec.callback("A"), Ticker{Symbol: "BTCUSDT"}.Address(), false)
	sm.Subscribe(rec.callback("B"), Ticker{Symbol: "btcusdt"}.Address(), false)

	endpoint := server.URL() + "/ws/btcusdt@ticker"
	assert.True(t, sm.Has(endpoint))
	assert.Equal(t, []string{endpoint}, sm.Endpoints())

	require.Eventually(t, func() bool { return connectedCount(sm) == 1 }, waitFor, tick)
	assert.Equal(t, 1, server.Accepted())
	assert.Equal(t, []string{"/ws/btcusdt@ticker"}, server.Paths())

	stats := sm.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Callbacks)
	assert.Equal(t, "btcusdt@ticker", stats[0].Address)

	server.Broadcast(`{"e":"24hrTicker","s":"BTCUSDT","c":"42000.10"}`)

	require.Eventually(t, func() bool { return rec.len() == 2 }, waitFor, tick)
	assert.Equal(t, []string{
		`A:{"e":"24hrTicker","s":"BTCUSDT","c":"42000.10"}`,
		`B:{"e":"24hrTicker","s":"BTCUSDT","c":"42000.10"}`,
	}, rec.all())
}

func TestSubscribe_DistinctEndpointsGetDistinctConnections(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	noop := func(*Message) {}
	sm.Subscribe(noop, Ticker{Symbol: "BTCUSDT"}.Address(), false)
	sm.Subscribe(noop, Ticker{Symbol: "ETHUSDT"}.Address(), false)
	sm.Subscribe(noop, Ticker{Symbol: "BTCUSDT"}.Address(), true)

	require.Eventually(t, func() bool { return connectedCount(sm) == 3 }, waitFor, tick)
	assert.Equal(t, 3, server.Accepted())
	assert.Len(t, sm.Endpoints(), 3)
}

func TestSubscribe_FailSoft(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	assert.NotPanics(t, func() {
		sm.Subscribe(nil, Ticker{Symbol: "BTCUSDT"}.Address(), false)
		sm.Subscribe(func(*Message) {}, "", false)
	})
	assert.Empty(t, sm.Endpoints())

	broken := newTestManager(t, &Config{
		BaseURL:         "ws://%zz/",
		CombinedBaseURL: "ws://%zz/stream?streams=",
	})
	assert.NotPanics(t, func() {
		broken.Subscribe(func(*Message) {}, Ticker{Symbol: "BTCUSDT"}.Address(), false)
	})
	assert.Empty(t, broken.Endpoints())
	assert.Equal(t, 0, server.Accepted())
}

func TestSubscribe_InvalidJSONIsDropped(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	rec := &recorder{}
	sm.Subscribe(rec.callback("A"), Trade{Symbol: "BNBBTC"}.Address(), false)
	require.Eventually(t, func() bool { return connectedCount(sm) == 1 }, waitFor, tick)

	server.Broadcast(`not json`)
	server.Broadcast(`{"e":"trade","p":"0.001"}`)

	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{`A:{"e":"trade","p":"0.001"}`}, rec.all())
}

func TestSubscribe_CallbackPanicDoesNotStopOthers(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	rec := &recorder{}
	address := MiniTicker{Symbol: "BTCUSDT"}.Address()
	sm.Subscribe(func(*Message) { panic("boom") }, address, false)
	sm.Subscribe(rec.callback("B"), address, false)
	require.Eventually(t, func() bool { return connectedCount(sm) == 1 }, waitFor, tick)

	server.Broadcast(`{"e":"24hrMiniTicker"}`)
	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, tick)
	assert.True(t, sm.Has(server.URL()+"/ws/btcusdt@miniTicker"))
}

func TestCombinedEnvelopeIsUnwrapped(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	got := make(chan *Message, 2)
	address, err := CombineStreams(Ticker{Symbol: "BTCUSDT"}, Ticker{Symbol: "ETHUSDT"})
	require.NoError(t, err)
	sm.Subscribe(func(msg *Message) { got <- msg }, address, true)

	require.Eventually(t, func() bool { return connectedCount(sm) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"/stream?streams=btcusdt@ticker/ethusdt@ticker"}, server.Paths())

	server.Broadcast(`{"stream":"ethusdt@ticker","data":{"s":"ETHUSDT","c":"3000.5"}}`)

	select {
	case msg := <-got:
		assert.Equal(t, StreamAddress("ethusdt@ticker"), msg.Stream)
		assert.JSONEq(t, `{"s":"ETHUSDT","c":"3000.5"}`, string(msg.Data))
		assert.Equal(t, server.URL()+"/stream?streams=btcusdt@ticker/ethusdt@ticker", msg.Endpoint)
	case <-time.After(waitFor):
		t.Fatal("combined message not delivered")
	}

	server.Broadcast(`{"result":null,"id":1}`)
	select {
	case msg := <-got:
		assert.Equal(t, StreamAddress(""), msg.Stream)
		assert.JSONEq(t, `{"result":null,"id":1}`, string(msg.Data))
	case <-time.After(waitFor):
		t.Fatal("non-envelope message not delivered")
	}
}

func TestAbnormalCloseEvictsEntryButKeepsConnectionOwned(t *testing.T) {
	server := streamtest.NewServer(t, func(conn *websocket.Conn) {
		streamtest.Drop(conn)
	})
	sm := newTestManager(t, testConfig(server, time.Hour, 5))

	endpoint := server.URL() + "/ws/btcusdt@ticker"
	sm.Subscribe(func(*Message) {}, Ticker{Symbol: "BTCUSDT"}.Address(), false)
	assert.True(t, sm.Has(endpoint))

	require.Eventually(t, func() bool { return !sm.Has(endpoint) }, waitFor, tick)
	require.Eventually(t, func() bool {
		stats := sm.Stats()
		return len(stats) == 1 && stats[0].State == "reconnecting"
	}, waitFor, tick)

	stats := sm.Stats()
	assert.True(t, stats[0].Detached)
	assert.Equal(t, 1, stats[0].Attempts)
	assert.Equal(t, 1, sm.DetachedCount())

	sm.CloseAll()
	assert.Equal(t, 0, sm.DetachedCount())
	assert.Empty(t, sm.Stats())
}

func TestDetachedConnectionIsReadoptedOnReconnect(t *testing.T) {
	var first atomic.Bool
	first.Store(true)
	server := streamtest.NewServer(t, func(conn *websocket.Conn) {
		if first.Swap(false) {
			streamtest.Drop(conn)
			return
		}
		streamtest.Hold(conn)
	})
	sm := newTestManager(t, testConfig(server, 30*time.Millisecond, 5))

	rec := &recorder{}
	endpoint := server.URL() + "/ws/ethusdt@aggTrade"
	sm.Subscribe(rec.callback("A"), AggTrade{Symbol: "ETHUSDT"}.Address(), false)

	require.Eventually(t, func() bool { return server.Accepted() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool {
		return sm.Has(endpoint) && sm.DetachedCount() == 0 && connectedCount(sm) == 1
	}, waitFor, tick)

	server.Broadcast(`{"e":"aggTrade","a":1}`)
	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, tick)

	// 重新登记后继续去重
	sm.Subscribe(rec.callback("B"), AggTrade{Symbol: "ethusdt"}.Address(), false)
	assert.Equal(t, 2, server.Accepted())
}

func TestResubscribeWhileDetachedCreatesNewConnection(t *testing.T) {
	var first atomic.Bool
	first.Store(true)
	server := streamtest.NewServer(t, func(conn *websocket.Conn) {
		if first.Swap(false) {
			streamtest.Drop(conn)
			return
		}
		streamtest.Hold(conn)
	})
	sm := newTestManager(t, testConfig(server, time.Hour, 5))

	endpoint := server.URL() + "/ws/btcusdt@trade"
	sm.Subscribe(func(*Message) {}, Trade{Symbol: "BTCUSDT"}.Address(), false)
	require.Eventually(t, func() bool { return sm.DetachedCount() == 1 }, waitFor, tick)

	sm.Subscribe(func(*Message) {}, Trade{Symbol: "BTCUSDT"}.Address(), false)
	require.Eventually(t, func() bool { return server.Accepted() == 2 && connectedCount(sm) == 1 }, waitFor, tick)
	assert.True(t, sm.Has(endpoint))
	assert.Equal(t, 1, sm.DetachedCount())
	assert.Len(t, sm.Stats(), 2)
}

func TestServerNormalCloseForgetsConnection(t *testing.T) {
	server := streamtest.NewServer(t, func(conn *websocket.Conn) {
		streamtest.CloseWith(conn, websocket.CloseNormalClosure)
		streamtest.Hold(conn)
	})
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	endpoint := server.URL() + "/ws/btcusdt@depth"
	sm.Subscribe(func(*Message) {}, Depth{Symbol: "BTCUSDT"}.Address(), false)

	require.Eventually(t, func() bool { return !sm.Has(endpoint) }, waitFor, tick)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, sm.DetachedCount())
	assert.Equal(t, 1, server.Accepted())
}

func TestReconnectExhaustedForgetsConnection(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	cfg := testConfig(server, 10*time.Millisecond, 2)
	server.Close()
	sm := newTestManager(t, cfg)

	sm.Subscribe(func(*Message) {}, Ticker{Symbol: "BTCUSDT"}.Address(), false)

	require.Eventually(t, func() bool {
		return len(sm.Endpoints()) == 0 && sm.DetachedCount() == 0
	}, waitFor, tick)
	assert.Empty(t, sm.Stats())
}

func TestCloseSubscription(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	rec := &recorder{}
	sm.Subscribe(rec.callback("A"), Ticker{Symbol: "BTCUSDT"}.Address(), false)
	sm.Subscribe(rec.callback("B"), Ticker{Symbol: "ETHUSDT"}.Address(), false)
	require.Eventually(t, func() bool { return connectedCount(sm) == 2 }, waitFor, tick)

	assert.True(t, sm.CloseSubscription(Ticker{Symbol: "btcusdt"}))
	assert.False(t, sm.Has(server.URL()+"/ws/btcusdt@ticker"))
	assert.True(t, sm.Has(server.URL()+"/ws/ethusdt@ticker"))

	assert.False(t, sm.CloseSubscription(Ticker{Symbol: "BTCUSDT"}), "already closed")
	assert.False(t, sm.CloseSubscription(Ticker{}), "invalid stream")
	assert.False(t, sm.CloseSubscription(Kline{Symbol: "BTCUSDT", Interval: "1m"}), "never subscribed")

	// 关闭后不会重连
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, server.Accepted())
	assert.Equal(t, 0, sm.DetachedCount())

	sm.Subscribe(rec.callback("C"), Ticker{Symbol: "BTCUSDT"}.Address(), false)
	require.Eventually(t, func() bool { return server.Accepted() == 3 }, waitFor, tick)
}

func TestCloseSubscriptionWhileDetachedStopsReconnect(t *testing.T) {
	var first atomic.Bool
	first.Store(true)
	server := streamtest.NewServer(t, func(conn *websocket.Conn) {
		if first.Swap(false) {
			streamtest.Drop(conn)
			return
		}
		streamtest.Hold(conn)
	})
	sm := newTestManager(t, testConfig(server, 200*time.Millisecond, 5))

	rec := &recorder{}
	endpoint := server.URL() + "/ws/btcusdt@ticker"
	sm.Subscribe(rec.callback("A"), Ticker{Symbol: "BTCUSDT"}.Address(), false)
	require.Eventually(t, func() bool { return sm.DetachedCount() == 1 }, waitFor, tick)
	assert.False(t, sm.Has(endpoint))
	assert.True(t, sm.Subscribed(Ticker{Symbol: "BTCUSDT"}.Address(), false))

	assert.True(t, sm.CloseSubscription(Ticker{Symbol: "BTCUSDT"}))
	assert.Equal(t, 0, sm.DetachedCount())
	assert.Empty(t, sm.Stats())
	assert.False(t, sm.Subscribed(Ticker{Symbol: "BTCUSDT"}.Address(), false))

	// 计划中的重连不会再拨号, 也不会重新登记
	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, 1, server.Accepted())
	assert.False(t, sm.Has(endpoint))
	assert.Equal(t, 0, sm.DetachedCount())

	server.Broadcast(`{"e":"24hrTicker","s":"BTCUSDT"}`)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.len())
}

func TestSubscribed(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	assert.False(t, sm.Subscribed(Ticker{Symbol: "BTCUSDT"}.Address(), false))

	sm.Subscribe(func(*Message) {}, Ticker{Symbol: "BTCUSDT"}.Address(), false)
	assert.True(t, sm.Subscribed(Ticker{Symbol: "btcusdt"}.Address(), false))
	assert.False(t, sm.Subscribed(Ticker{Symbol: "BTCUSDT"}.Address(), true), "combined endpoint is a different address")

	require.True(t, sm.CloseSubscription(Ticker{Symbol: "BTCUSDT"}))
	assert.False(t, sm.Subscribed(Ticker{Symbol: "BTCUSDT"}.Address(), false))
}

func TestCloseCombined(t *testing.T) {
	server := streamtest.NewServer(t, streamtest.Hold)
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	streams := []Stream{Ticker{Symbol: "BTCUSDT"}, Kline{Symbol: "BTCUSDT", Interval: "1m"}}
	address, err := CombineStreams(streams...)
	require.NoError(t, err)
	sm.Subscribe(func(*Message) {}, address, true)
	require.Eventually(t, func() bool { return connectedCount(sm) == 1 }, waitFor, tick)

	assert.False(t, sm.CloseSubscription(streams[0]))
	assert.True(t, sm.CloseCombined(streams...))
	assert.Empty(t, sm.Endpoints())
	assert.False(t, sm.CloseCombined())
}

func TestCloseAll(t *testing.T) {
	var closes atomic.Int32
	server := streamtest.NewServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					closes.Inc()
				}
				return
			}
		}
	})
	sm := newTestManager(t, testConfig(server, 20*time.Millisecond, 5))

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"} {
		sm.Subscribe(func(*Message) {}, Ticker{Symbol: symbol}.Address(), false)
	}
	require.Eventually(t, func() bool { return connectedCount(sm) == 3 }, waitFor, tick)

	sm.CloseAll()
	assert.Empty(t, sm.Endpoints())
	assert.Empty(t, sm.Stats())

	require.Eventually(t, func() bool { return closes.Load() == 3 }, waitFor, tick)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 3, server.Accepted())
}
