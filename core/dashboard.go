package core

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/pkg/binance"
	"github.com/riven-blade/pricedash/pkg/logger"
	"github.com/riven-blade/pricedash/pkg/metrics"
	"github.com/riven-blade/pricedash/pkg/utils"
	"github.com/riven-blade/pricedash/storage"
)

// Dashboard 价格面板: 维护交易对列表, 为每个交易对订阅行情并写入面板状态
type Dashboard struct {
	feed    MarketFeed
	store   *storage.SymbolStore
	board   *Board
	metrics *metrics.Metrics

	mu         sync.RWMutex
	symbols    []storage.Symbol
	subscribed map[string]struct{} // 已订阅行情的交易对
	charts     map[chartKey]struct{}
	running    bool
}

// Option 面板选项
type Option func(*Dashboard)

// WithMetrics 设置指标集合
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dashboard) {
		d.metrics = m
	}
}

// NewDashboard 创建面板
func NewDashboard(feed MarketFeed, store *storage.SymbolStore, opts ...Option) *Dashboard {
	d := &Dashboard{
		feed:       feed,
		store:      store,
		board:      NewBoard(),
		metrics:    metrics.Default(),
		subscribed: make(map[string]struct{}),
		charts:     make(map[chartKey]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Board 返回面板状态
func (d *Dashboard) Board() *Board {
	return d.board
}

// Start 加载交易对列表并订阅所有行情
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return ErrAlreadyRunning
	}

	d.symbols = d.store.Load(ctx)
	for _, s := range d.symbols {
		d.subscribeSymbol(s.Symbol)
	}
	d.running = true

	logger.Ctx(ctx).Info("Dashboard started", zap.Int("symbols", len(d.symbols)))
	return nil
}

// Stop 关闭所有订阅
func (d *Dashboard) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.feed.CloseAll()
	d.subscribed = make(map[string]struct{})
	d.charts = make(map[chartKey]struct{})
	d.running = false

	logger.Info("Dashboard stopped")
	return nil
}

// subscribeSymbol 行情仍在推送或重连时不重复注册回调.
// 连接放弃重连后订阅已被注册表遗忘, 这时重新订阅. 调用方持有 d.mu
func (d *Dashboard) subscribeSymbol(symbol string) {
	if _, ok := d.subscribed[symbol]; ok && d.feed.Subscribed(binance.Ticker{Symbol: symbol}) {
		return
	}
	d.subscribed[symbol] = struct{}{}
	d.feed.OnTicker(symbol, func(ev *binance.TickerEvent) {
		d.board.UpdateTicker(TransformTicker(symbol, ev))
		d.metrics.TickerUpdate()
	})
}

func (d *Dashboard) unsubscribeSymbol(symbol string) {
	delete(d.subscribed, symbol)
	d.feed.CloseSubscription(binance.Ticker{Symbol: symbol})
}

// Symbols 当前交易对列表的副本
func (d *Dashboard) Symbols() []storage.Symbol {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]storage.Symbol, len(d.symbols))
	copy(out, d.symbols)
	return out
}

// Symbol 按交易对查找
func (d *Dashboard) Symbol(symbol string) (storage.Symbol, bool) {
	symbol = utils.NormalizeSymbol(symbol)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.indexOf(symbol); i >= 0 {
		return d.symbols[i], true
	}
	return storage.Symbol{}, false
}

// indexOf 调用方持有 d.mu
func (d *Dashboard) indexOf(symbol string) int {
	for i, s := range d.symbols {
		if s.Symbol == symbol {
			return i
		}
	}
	return -1
}

// AddCoinPair 把交易对加入列表并订阅行情. 已在列表中时返回 false
func (d *Dashboard) AddCoinPair(ctx context.Context, s storage.Symbol) (bool, error) {
	s.Symbol = utils.NormalizeSymbol(s.Symbol)
	if s.Symbol == "" {
		return false, ErrEmptySymbol
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	added := false
	if d.indexOf(s.Symbol) < 0 {
		next := append(append([]storage.Symbol(nil), d.symbols...), s)
		if err := d.store.Save(ctx, next); err != nil {
			return false, errors.Wrapf(err, "add %s", s.Symbol)
		}
		d.symbols = next
		added = true
	}

	d.board.Placeholder(s.Symbol)
	d.subscribeSymbol(s.Symbol)

	if added {
		logger.Ctx(ctx).Info("Coin pair added", zap.String("symbol", s.Symbol))
	}
	return added, nil
}

// RemoveCoinPair 从列表中移除交易对, 关闭它的行情订阅并清掉面板上的数据
func (d *Dashboard) RemoveCoinPair(ctx context.Context, symbol string) error {
	symbol = utils.NormalizeSymbol(symbol)

	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(symbol)
	if i < 0 {
		return errors.Wrapf(ErrSymbolNotFound, "%q", symbol)
	}
	next := make([]storage.Symbol, 0, len(d.symbols)-1)
	next = append(next, d.symbols[:i]...)
	next = append(next, d.symbols[i+1:]...)
	if err := d.store.Save(ctx, next); err != nil {
		return errors.Wrapf(err, "remove %s", symbol)
	}
	d.symbols = next

	d.unsubscribeSymbol(symbol)
	d.closeChartsLocked(symbol)
	d.board.Remove(symbol)

	logger.Ctx(ctx).Info("Coin pair removed", zap.String("symbol", symbol))
	return nil
}

// ResetToDefaults 恢复默认交易对列表
func (d *Dashboard) ResetToDefaults(ctx context.Context) ([]storage.Symbol, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defaults, err := d.store.Reset(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "reset symbols")
	}

	keep := make(map[string]struct{}, len(defaults))
	for _, s := range defaults {
		keep[s.Symbol] = struct{}{}
	}
	for _, s := range d.symbols {
		if _, ok := keep[s.Symbol]; !ok {
			d.unsubscribeSymbol(s.Symbol)
			d.closeChartsLocked(s.Symbol)
			d.board.Remove(s.Symbol)
		}
	}

	d.symbols = defaults
	for _, s := range defaults {
		d.subscribeSymbol(s.Symbol)
	}

	logger.Ctx(ctx).Info("Coin pairs reset to defaults", zap.Int("symbols", len(defaults)))
	out := make([]storage.Symbol, len(defaults))
	copy(out, defaults)
	return out, nil
}

// Ticker 交易对的最新行情
func (d *Dashboard) Ticker(symbol string) (Ticker, bool) {
	return d.board.Ticker(utils.NormalizeSymbol(symbol))
}

// HasTicker 是否已收到该交易对的价格
func (d *Dashboard) HasTicker(symbol string) bool {
	return d.board.HasTicker(utils.NormalizeSymbol(symbol))
}

// Tickers 按列表顺序返回面板上的行情
func (d *Dashboard) Tickers() []Ticker {
	d.mu.RLock()
	symbols := make([]string, len(d.symbols))
	for i, s := range d.symbols {
		symbols[i] = s.Symbol
	}
	d.mu.RUnlock()

	out := make([]Ticker, 0, len(symbols))
	for _, symbol := range symbols {
		if t, ok := d.board.Ticker(symbol); ok {
			out = append(out, t)
		}
	}
	return out
}

// SubscribeChart 订阅图表K线, 最新一根K线保存在面板上. 订阅仍有效时重复调用不会注册新的回调
func (d *Dashboard) SubscribeChart(symbol, interval string) error {
	symbol = utils.NormalizeSymbol(symbol)
	stream := binance.Kline{Symbol: symbol, Interval: interval}
	if err := stream.Validate(); err != nil {
		return err
	}

	key := chartKey{symbol, interval}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.charts[key]; ok && d.feed.Subscribed(stream) {
		return nil
	}
	d.charts[key] = struct{}{}

	d.feed.OnKline(symbol, interval, func(ev *binance.KlineEvent) {
		d.board.UpdateKline(symbol, interval, ev.Kline)
	})
	return nil
}

// UnsubscribeChart 关闭图表K线订阅
func (d *Dashboard) UnsubscribeChart(symbol, interval string) bool {
	symbol = utils.NormalizeSymbol(symbol)

	d.mu.Lock()
	delete(d.charts, chartKey{symbol, interval})
	d.mu.Unlock()

	d.board.RemoveKline(symbol, interval)
	return d.feed.CloseSubscription(binance.Kline{Symbol: symbol, Interval: interval})
}

// Chart 图表最新K线
func (d *Dashboard) Chart(symbol, interval string) (binance.KlineData, bool) {
	return d.board.Kline(utils.NormalizeSymbol(symbol), interval)
}

// closeChartsLocked 关闭交易对的所有图表订阅, 调用方持有 d.mu
func (d *Dashboard) closeChartsLocked(symbol string) {
	for key := range d.charts {
		if key.symbol == symbol {
			d.feed.CloseSubscription(binance.Kline{Symbol: key.symbol, Interval: key.interval})
			delete(d.charts, key)
		}
	}
}
