package binance

import (
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/pkg/logger"
)

// Client 行情订阅的类型化入口, 每个方法都是对 SubscriptionManager.Subscribe 的包装
type Client struct {
	manager *SubscriptionManager
}

// NewClient 创建客户端
func NewClient(cfg *Config, opts ...ManagerOption) (*Client, error) {
	manager, err := NewSubscriptionManager(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{manager: manager}, nil
}

// NewClientWithManager 复用已有的注册表
func NewClientWithManager(manager *SubscriptionManager) *Client {
	return &Client{manager: manager}
}

// Manager 返回底层注册表
func (c *Client) Manager() *SubscriptionManager {
	return c.manager
}

// OnDepthUpdate 订阅增量深度
func (c *Client) OnDepthUpdate(symbol string, handler func(*DepthEvent)) {
	c.subscribeTyped(Depth{Symbol: symbol}, typed(handler))
}

// OnDepthLevelUpdate 订阅有限档深度, level 取 5/10/20
func (c *Client) OnDepthLevelUpdate(symbol string, level int, handler func(*PartialDepthEvent)) {
	c.subscribeTyped(DepthLevel{Symbol: symbol, Level: level}, typed(handler))
}

// OnKline 订阅K线, interval 如 1m/15m/1h
func (c *Client) OnKline(symbol, interval string, handler func(*KlineEvent)) {
	c.subscribeTyped(Kline{Symbol: symbol, Interval: interval}, typed(handler))
}

// OnAggTrade 订阅归集成交
func (c *Client) OnAggTrade(symbol string, handler func(*AggTradeEvent)) {
	c.subscribeTyped(AggTrade{Symbol: symbol}, typed(handler))
}

// OnTrade 订阅逐笔成交
func (c *Client) OnTrade(symbol string, handler func(*TradeEvent)) {
	c.subscribeTyped(Trade{Symbol: symbol}, typed(handler))
}

// OnTicker 订阅24小时行情
func (c *Client) OnTicker(symbol string, handler func(*TickerEvent)) {
	c.subscribeTyped(Ticker{Symbol: symbol}, typed(handler))
}

// OnMiniTicker 订阅精简行情
func (c *Client) OnMiniTicker(symbol string, handler func(*MiniTickerEvent)) {
	c.subscribeTyped(MiniTicker{Symbol: symbol}, typed(handler))
}

// OnAllMiniTickers 订阅全市场精简行情
func (c *Client) OnAllMiniTickers(handler func([]MiniTickerEvent)) {
	c.subscribeTyped(AllMiniTickers{}, typedSlice(handler))
}

// OnAllTickers 订阅全市场行情
func (c *Client) OnAllTickers(handler func([]TickerEvent)) {
	c.subscribeTyped(AllTickers{}, typedSlice(handler))
}

// OnCombinedStream 在一个连接上订阅多个流, 回调收到的 Message.Stream 是具体的子流地址
func (c *Client) OnCombinedStream(streams []Stream, handler Callback) {
	address, err := CombineStreams(streams...)
	if err != nil {
		c.manager.metrics.SubscribeFailure()
		logger.Error("combined subscribe rejected", zap.Error(err))
		return
	}
	c.manager.Subscribe(handler, address, true)
}

// Subscribe 以原始消息订阅任意流
func (c *Client) Subscribe(s Stream, handler Callback) {
	c.subscribeTyped(s, handler)
}

// CloseSubscription 关闭单流订阅
func (c *Client) CloseSubscription(s Stream) bool {
	return c.manager.CloseSubscription(s)
}

// CloseCombined 关闭组合流订阅
func (c *Client) CloseCombined(streams ...Stream) bool {
	return c.manager.CloseCombined(streams...)
}

// Subscribed 单流是否仍有连接在推送或重连
func (c *Client) Subscribed(s Stream) bool {
	if err := s.Validate(); err != nil {
		return false
	}
	return c.manager.Subscribed(s.Address(), false)
}

// CloseAll 关闭全部订阅
func (c *Client) CloseAll() {
	c.manager.CloseAll()
}

func (c *Client) subscribeTyped(s Stream, cb Callback) {
	if err := s.Validate(); err != nil {
		c.manager.metrics.SubscribeFailure()
		logger.Error("subscribe rejected",
			zap.String("kind", string(s.Kind())),
			zap.Error(err))
		return
	}
	c.manager.Subscribe(cb, s.Address(), false)
}

// typed 把消息体解码成 *T 后回调, 解码失败时跳过
func typed[T any](handler func(*T)) Callback {
	if handler == nil {
		return nil
	}
	return func(msg *Message) {
		v := new(T)
		if err := msg.Decode(v); err != nil {
			logger.RatedWarn(10, "decode stream event failed",
				zap.String(logger.FieldNameEndpoint, msg.Endpoint),
				zap.Error(err))
			return
		}
		handler(v)
	}
}

func typedSlice[T any](handler func([]T)) Callback {
	if handler == nil {
		return nil
	}
	return func(msg *Message) {
		var v []T
		if err := msg.Decode(&v); err != nil {
			logger.RatedWarn(10, "decode stream event failed",
				zap.String(logger.FieldNameEndpoint, msg.Endpoint),
				zap.Error(err))
			return
		}
		handler(v)
	}
}
