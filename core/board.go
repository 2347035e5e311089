package core

import (
	"sync"

	"github.com/riven-blade/pricedash/pkg/binance"
)

// 价格方向
const (
	PriceUp   = 1
	PriceDown = -1
)

// Ticker 面板上的一行行情
type Ticker struct {
	Symbol  string  `json:"symbol"`
	Price   float64 `json:"price,omitempty"`
	Vol     string  `json:"vol,omitempty"`     // 成交额, 两位小数
	Percent string  `json:"percent,omitempty"` // 涨跌幅, 两位小数
	Chg     string  `json:"chg,omitempty"`
	High    string  `json:"high,omitempty"`
	Low     string  `json:"low,omitempty"`
	Open    string  `json:"open,omitempty"`
	Time    int64   `json:"time,omitempty"` // 事件时间, 毫秒
	PChg    int     `json:"pchg"`           // 相对上一笔价格的方向
}

type chartKey struct {
	symbol   string
	interval string
}

// Board 应用状态: 每个交易对的最新行情和每个图表的最新K线
type Board struct {
	mu      sync.RWMutex
	tickers map[string]Ticker
	charts  map[chartKey]binance.KlineData
}

// NewBoard 创建空面板
func NewBoard() *Board {
	return &Board{
		tickers: make(map[string]Ticker),
		charts:  make(map[chartKey]binance.KlineData),
	}
}

// UpdateTicker 写入新行情并计算价格方向: 比上一笔高为 PriceUp, 否则 PriceDown,
// 没有上一笔价格时为 PriceUp
func (b *Board) UpdateTicker(t Ticker) Ticker {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.tickers[t.Symbol]
	if ok && t.Price != 0 && prev.Price != 0 {
		if t.Price > prev.Price {
			t.PChg = PriceUp
		} else {
			t.PChg = PriceDown
		}
	} else {
		t.PChg = PriceUp
	}
	b.tickers[t.Symbol] = t
	return t
}

// Placeholder 为刚加入的交易对放一个没有价格的占位行
func (b *Board) Placeholder(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.tickers[symbol]; !ok {
		b.tickers[symbol] = Ticker{Symbol: symbol, PChg: PriceUp}
	}
}

// Ticker 返回交易对的行情
func (b *Board) Ticker(symbol string) (Ticker, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tickers[symbol]
	return t, ok
}

// HasTicker 只有收到过价格才为 true
func (b *Board) HasTicker(symbol string) bool {
	t, ok := b.Ticker(symbol)
	return ok && t.Price != 0
}

// Remove 删除交易对的行情和图表
func (b *Board) Remove(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tickers, symbol)
	for key := range b.charts {
		if key.symbol == symbol {
			delete(b.charts, key)
		}
	}
}

// Len 行情条数
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tickers)
}

// UpdateKline 记录图表最新的K线
func (b *Board) UpdateKline(symbol, interval string, k binance.KlineData) {
	b.mu.Lock()
	b.charts[chartKey{symbol, interval}] = k
	b.mu.Unlock()
}

// Kline 图表最新的K线
func (b *Board) Kline(symbol, interval string) (binance.KlineData, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	k, ok := b.charts[chartKey{symbol, interval}]
	return k, ok
}

// RemoveKline 删除图表
func (b *Board) RemoveKline(symbol, interval string) {
	b.mu.Lock()
	delete(b.charts, chartKey{symbol, interval})
	b.mu.Unlock()
}
