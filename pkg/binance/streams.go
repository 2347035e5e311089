package binance

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrEmptySymbol     = errors.New("symbol is empty")
	ErrInvalidLevel    = errors.New("depth level must be 5, 10 or 20")
	ErrInvalidInterval = errors.New("kline interval is empty")
	ErrNoStreams       = errors.New("combined stream needs at least one stream")
)

// StreamAddress 规范化的流地址, 同时是订阅去重的key
type StreamAddress string

func (a StreamAddress) String() string { return string(a) }

// StreamKind 流类型
type StreamKind string

const (
	KindDepth          StreamKind = "depth"
	KindDepthLevel     StreamKind = "depthLevel"
	KindKline          StreamKind = "kline"
	KindAggTrade       StreamKind = "aggTrade"
	KindTrade          StreamKind = "trade"
	KindTicker         StreamKind = "ticker"
	KindMiniTicker     StreamKind = "miniTicker"
	KindAllMiniTickers StreamKind = "allMiniTicker"
	KindAllTickers     StreamKind = "allTickers"
)

// Stream 逻辑流标识. 变体集合是封闭的, 只有本包内的类型实现它
type Stream interface {
	Kind() StreamKind
	Address() StreamAddress
	Validate() error
	stream()
}

// Depth 增量深度 <symbol>@depth
type Depth struct{ Symbol string }

// DepthLevel 有限档深度 <symbol>@depth<level>
type DepthLevel struct {
	Symbol string
	Level  int
}

// Kline K线 <symbol>@kline_<interval>
type Kline struct {
	Symbol   string
	Interval string
}

// AggTrade 归集成交 <symbol>@aggTrade
type AggTrade struct{ Symbol string }

// Trade 逐笔成交 <symbol>@trade
type Trade struct{ Symbol string }

// Ticker 24小时行情 <symbol>@ticker
type Ticker struct{ Symbol string }

// MiniTicker 精简行情 <symbol>@miniTicker
type MiniTicker struct{ Symbol string }

// AllMiniTickers 全市场精简行情 !miniTicker@arr
type AllMiniTickers struct{}

// AllTickers 全市场行情 !ticker@arr
type AllTickers struct{}

func (Depth) Kind() StreamKind          { return KindDepth }
func (DepthLevel) Kind() StreamKind     { return KindDepthLevel }
func (Kline) Kind() StreamKind          { return KindKline }
func (AggTrade) Kind() StreamKind       { return KindAggTrade }
func (Trade) Kind() StreamKind          { return KindTrade }
func (Ticker) Kind() StreamKind         { return KindTicker }
func (MiniTicker) Kind() StreamKind     { return KindMiniTicker }
func (AllMiniTickers) Kind() StreamKind { return KindAllMiniTickers }
func (AllTickers) Kind() StreamKind     { return KindAllTickers }

func (s Depth) Address() StreamAddress { return symbolAddress(s.Symbol, "depth") }
func (s DepthLevel) Address() StreamAddress {
	return symbolAddress(s.Symbol, fmt.Sprintf("depth%d", s.Level))
}
func (s Kline) Address() StreamAddress {
	return symbolAddress(s.Symbol, "kline_"+strings.TrimSpace(s.Interval))
}
func (s AggTrade) Address() StreamAddress     { return symbolAddress(s.Symbol, "aggTrade") }
func (s Trade) Address() StreamAddress        { return symbolAddress(s.Symbol, "trade") }
func (s Ticker) Address() StreamAddress       { return symbolAddress(s.Symbol, "ticker") }
func (s MiniTicker) Address() StreamAddress   { return symbolAddress(s.Symbol, "miniTicker") }
func (AllMiniTickers) Address() StreamAddress { return "!miniTicker@arr" }
func (AllTickers) Address() StreamAddress     { return "!ticker@arr" }

func (s Depth) Validate() error { return validateSymbol(s.Symbol) }
func (s DepthLevel) Validate() error {
	if err := validateSymbol(s.Symbol); err != nil {
		return err
	}
	switch s.Level {
	case 5, 10, 20:
		return nil
	default:
		return errors.Wrapf(ErrInvalidLevel, "got %d", s.Level)
	}
}
func (s Kline) Validate() error {
	if err := validateSymbol(s.Symbol); err != nil {
		return err
	}
	if strings.TrimSpace(s.Interval) == "" {
		return ErrInvalidInterval
	}
	return nil
}
func (s AggTrade) Validate() error     { return validateSymbol(s.Symbol) }
func (s Trade) Validate() error        { return validateSymbol(s.Symbol) }
func (s Ticker) Validate() error       { return validateSymbol(s.Symbol) }
func (s MiniTicker) Validate() error   { return validateSymbol(s.Symbol) }
func (AllMiniTickers) Validate() error { return nil }
func (AllTickers) Validate() error     { return nil }

func (Depth) stream()          {}
func (DepthLevel) stream()     {}
func (Kline) stream()          {}
func (AggTrade) stream()       {}
func (Trade) stream()          {}
func (Ticker) stream()         {}
func (MiniTicker) stream()     {}
func (AllMiniTickers) stream() {}
func (AllTickers) stream()     {}

// KlineMinutes 以分钟数构造K线流, 例如 15 -> 15m
func KlineMinutes(symbol string, minutes int) Kline {
	return Kline{Symbol: symbol, Interval: fmt.Sprintf("%dm", minutes)}
}

func symbolAddress(symbol, suffix string) StreamAddress {
	return StreamAddress(strings.ToLower(strings.TrimSpace(symbol)) + "@" + suffix)
}

func validateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return ErrEmptySymbol
	}
	return nil
}

// Combine 用 / 连接多个流地址, 用于组合流endpoint
func Combine(addresses ...StreamAddress) StreamAddress {
	parts := make([]string, len(addresses))
	for i, a := range addresses {
		parts[i] = string(a)
	}
	return StreamAddress(strings.Join(parts, "/"))
}

// CombineStreams 校验并组合多个流
func CombineStreams(streams ...Stream) (StreamAddress, error) {
	if len(streams) == 0 {
		return "", ErrNoStreams
	}
	addresses := make([]StreamAddress, len(streams))
	for i, s := range streams {
		if err := s.Validate(); err != nil {
			return "", errors.Wrapf(err, "stream %d (%s)", i, s.Kind())
		}
		addresses[i] = s.Address()
	}
	return Combine(addresses...), nil
}

// Endpoint 拼接完整的连接地址
func Endpoint(baseURL, combinedBaseURL string, address StreamAddress, combined bool) string {
	if combined {
		return combinedBaseURL + string(address)
	}
	return baseURL + string(address)
}
