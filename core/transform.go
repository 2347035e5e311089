package core

import (
	"github.com/riven-blade/pricedash/pkg/binance"
	"github.com/riven-blade/pricedash/pkg/utils"
)

// TransformTicker 把原始24小时行情转换为面板行, symbol 使用订阅时的写法
func TransformTicker(symbol string, ev *binance.TickerEvent) Ticker {
	return Ticker{
		Symbol:  symbol,
		Price:   utils.ToFloat(ev.LastPrice),
		Vol:     utils.FormatFixed(ev.QuoteVolume, 2),
		Percent: utils.FormatFixed(ev.PriceChangePercent, 2),
		Chg:     ev.PriceChange,
		High:    ev.HighPrice,
		Low:     ev.LowPrice,
		Open:    ev.OpenPrice,
		Time:    ev.EventTime,
	}
}
