package core

import (
	"github.com/cockroachdb/errors"

	"github.com/riven-blade/pricedash/pkg/binance"
)

var (
	ErrAlreadyRunning = errors.New("dashboard already running")
	ErrNotRunning     = errors.New("dashboard not running")
	ErrEmptySymbol    = errors.New("symbol is empty")
	ErrSymbolNotFound = errors.New("symbol not in list")
)

// MarketFeed 面板依赖的行情订阅能力, *binance.Client 满足该接口
type MarketFeed interface {
	OnTicker(symbol string, handler func(*binance.TickerEvent))
	OnKline(symbol, interval string, handler func(*binance.KlineEvent))
	Subscribed(s binance.Stream) bool
	CloseSubscription(s binance.Stream) bool
	CloseAll()
}

var _ MarketFeed = (*binance.Client)(nil)
