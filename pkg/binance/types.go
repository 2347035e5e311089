package binance

import (
	jsoniter "github.com/json-iterator/go"
)

// Binance 的短字段名里同时有 e/E, p/P 这类仅大小写不同的key, 必须大小写敏感
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	CaseSensitive:          true,
}.Froze()

// ========== Binance WebSocket 事件类型常数 ==========

const (
	EventTypeTrade          = "trade"          // 逐笔成交
	EventTypeAggTrade       = "aggTrade"       // 归集成交
	EventType24hrTicker     = "24hrTicker"     // 24小时价格统计
	EventType24hrMiniTicker = "24hrMiniTicker" // 24小时精简统计
	EventTypeKline          = "kline"          // K线
	EventTypeDepthUpdate    = "depthUpdate"    // 增量深度
)

// WebSocket 协议字段
const (
	FieldStream = "stream" // 流名称
	FieldData   = "data"   // 数据内容
)

// Message 分发给订阅回调的消息. 组合流的 {stream,data} 信封已经拆开
type Message struct {
	Endpoint string              `json:"endpoint"`
	Stream   StreamAddress       `json:"stream"`
	Data     jsoniter.RawMessage `json:"data"`
}

// Decode 把消息体解码到 v
func (m *Message) Decode(v interface{}) error {
	return json.Unmarshal(m.Data, v)
}

// combinedEnvelope 组合流的外层包装
type combinedEnvelope struct {
	Stream string              `json:"stream"`
	Data   jsoniter.RawMessage `json:"data"`
}

// TickerEvent 24小时行情 <symbol>@ticker
type TickerEvent struct {
	EventType          string `json:"e"`
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	WeightedAvgPrice   string `json:"w"`
	PrevClosePrice     string `json:"x"`
	LastPrice          string `json:"c"`
	LastQty            string `json:"Q"`
	BidPrice           string `json:"b"`
	BidQty             string `json:"B"`
	AskPrice           string `json:"a"`
	AskQty             string `json:"A"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	OpenTime           int64  `json:"O"`
	CloseTime          int64  `json:"C"`
	FirstTradeID       int64  `json:"F"`
	LastTradeID        int64  `json:"L"`
	Count              int64  `json:"n"`
}

// MiniTickerEvent 精简行情 <symbol>@miniTicker, 也是 !miniTicker@arr 的数组元素
type MiniTickerEvent struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	ClosePrice  string `json:"c"`
	OpenPrice   string `json:"o"`
	HighPrice   string `json:"h"`
	LowPrice    string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
}

// KlineEvent K线事件
type KlineEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	Kline     KlineData `json:"k"`
}

// KlineData K线数据
type KlineData struct {
	StartTime       int64  `json:"t"`
	CloseTime       int64  `json:"T"`
	Symbol          string `json:"s"`
	Interval        string `json:"i"`
	FirstTradeID    int64  `json:"f"`
	LastTradeID     int64  `json:"L"`
	Open            string `json:"o"`
	Close           string `json:"c"`
	High            string `json:"h"`
	Low             string `json:"l"`
	Volume          string `json:"v"`
	TradeNum        int64  `json:"n"`
	IsFinal         bool   `json:"x"`
	QuoteVolume     string `json:"q"`
	ActiveBuyVolume string `json:"V"`
	ActiveBuyQuote  string `json:"Q"`
}

// DepthEvent 增量深度 <symbol>@depth
type DepthEvent struct {
	EventType     string      `json:"e"`
	EventTime     int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

// PartialDepthEvent 有限档深度 <symbol>@depth<level>, 推送的是快照
type PartialDepthEvent struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// TradeEvent 逐笔成交
type TradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// AggTradeEvent 归集成交
type AggTradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}
