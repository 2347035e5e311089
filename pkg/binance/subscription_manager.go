package binance

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/pkg/logger"
	"github.com/riven-blade/pricedash/pkg/metrics"
	"github.com/riven-blade/pricedash/pkg/stream"
)

// Callback 订阅回调, 每条解码后的消息调用一次
type Callback func(msg *Message)

var errNilCallback = errors.New("callback is nil")

// subscription 一个endpoint上的连接和它的回调数
type subscription struct {
	endpoint  string
	address   StreamAddress
	combined  bool
	conn      *stream.Connection
	callbacks int
}

// SubscriptionStats 单个连接的快照
type SubscriptionStats struct {
	Endpoint  string `json:"endpoint"`
	Address   string `json:"address"`
	Combined  bool   `json:"combined"`
	ConnID    string `json:"conn_id"`
	State     string `json:"state"`
	Attempts  int    `json:"attempts"`
	Callbacks int    `json:"callbacks"`
	Detached  bool   `json:"detached"`
}

// SubscriptionManager 按endpoint去重的订阅注册表
//
// 同一个endpoint只有一个连接, 回调按注册顺序接收消息. 连接出错或关闭时
// endpoint条目被移除, 但连接本身仍归注册表所有(detached), 直到它放弃重连,
// 正常关闭, 或被 CloseAll 关闭. detached 的连接重新连上且endpoint空闲时重新登记.
type SubscriptionManager struct {
	cfg     *Config
	metrics *metrics.Metrics
	dialer  stream.Dialer
	log     *logger.MLogger

	mu            sync.Mutex
	subscriptions map[string]*subscription // key: endpoint
	detached      map[string]*subscription // key: conn id
}

// ManagerOption 注册表选项
type ManagerOption func(*SubscriptionManager)

// WithManagerMetrics 设置指标集合
func WithManagerMetrics(m *metrics.Metrics) ManagerOption {
	return func(sm *SubscriptionManager) {
		sm.metrics = m
	}
}

// WithManagerDialer 为新建的连接指定拨号器
func WithManagerDialer(d stream.Dialer) ManagerOption {
	return func(sm *SubscriptionManager) {
		sm.dialer = d
	}
}

// NewSubscriptionManager 创建订阅注册表, cfg 为 nil 时使用默认配置
func NewSubscriptionManager(cfg *Config, opts ...ManagerOption) (*SubscriptionManager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid stream config")
	}
	sm := &SubscriptionManager{
		cfg:           cfg,
		metrics:       metrics.Default(),
		subscriptions: make(map[string]*subscription),
		detached:      make(map[string]*subscription),
		log:           logger.With(zap.String(logger.FieldNameModule, "binance")),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm, nil
}

// Config 返回当前配置
func (sm *SubscriptionManager) Config() *Config {
	return sm.cfg
}

// Endpoint 按配置拼接完整endpoint
func (sm *SubscriptionManager) Endpoint(address StreamAddress, combined bool) string {
	return Endpoint(sm.cfg.BaseURL, sm.cfg.CombinedBaseURL, address, combined)
}

// Subscribe 订阅一个流地址. 已存在的endpoint只追加回调, 不新建连接.
// 任何失败都只记录日志, 不会返回错误或panic
func (sm *SubscriptionManager) Subscribe(cb Callback, address StreamAddress, combined bool) {
	defer func() {
		if r := recover(); r != nil {
			sm.metrics.SubscribeFailure()
			sm.log.Error("subscribe panicked",
				zap.String("address", address.String()),
				zap.Any("panic", r))
		}
	}()

	if err := sm.subscribe(cb, address, combined); err != nil {
		sm.metrics.SubscribeFailure()
		sm.log.Error("subscribe failed",
			zap.String("address", address.String()),
			zap.Bool("combined", combined),
			zap.Error(err))
	}
}

func (sm *SubscriptionManager) subscribe(cb Callback, address StreamAddress, combined bool) error {
	if cb == nil {
		return errNilCallback
	}
	if address == "" {
		return errors.New("stream address is empty")
	}
	endpoint := sm.Endpoint(address, combined)

	sm.mu.Lock()
	if sub, ok := sm.subscriptions[endpoint]; ok {
		sub.callbacks++
		sub.conn.OnMessage(sm.messageHandler(sub, cb))
		sm.mu.Unlock()

		sm.log.Debug("added callback to existing subscription",
			zap.String(logger.FieldNameEndpoint, endpoint),
			zap.Int("callbacks", sub.callbacks))
		return nil
	}

	opts := []stream.Option{stream.WithMetrics(sm.metrics)}
	if sm.dialer != nil {
		opts = append(opts, stream.WithDialer(sm.dialer))
	}
	conn, err := stream.NewConnection(endpoint, sm.cfg.StreamConfig(), opts...)
	if err != nil {
		sm.mu.Unlock()
		return errors.Wrapf(err, "create connection for %s", endpoint)
	}

	sub := &subscription{
		endpoint:  endpoint,
		address:   address,
		combined:  combined,
		conn:      conn,
		callbacks: 1,
	}
	conn.OnOpen(func(ev stream.Event) { sm.handleOpen(sub) })
	conn.OnError(func(ev stream.Event) { sm.handleError(sub, ev) })
	conn.OnClose(func(ev stream.Event) { sm.handleClose(sub, ev) })
	conn.OnFailed(func(ev stream.Event) { sm.handleFailed(sub) })
	conn.OnMessage(sm.messageHandler(sub, cb))

	sm.subscriptions[endpoint] = sub
	sm.updateGauges()
	sm.mu.Unlock()

	sm.log.Info("subscribing",
		zap.String(logger.FieldNameEndpoint, endpoint),
		zap.String(logger.FieldNameConnID, conn.ID()))
	return conn.Connect()
}

func (sm *SubscriptionManager) messageHandler(sub *subscription, cb Callback) stream.MessageHandler {
	return func(payload []byte) {
		msg, err := sm.decode(sub, payload)
		if err != nil {
			sm.metrics.DecodeFailure()
			sm.log.RatedWarn(10, "dropping undecodable message",
				zap.String(logger.FieldNameEndpoint, sub.endpoint),
				zap.Error(err))
			return
		}
		cb(msg)
	}
}

func (sm *SubscriptionManager) decode(sub *subscription, payload []byte) (*Message, error) {
	if !json.Valid(payload) {
		return nil, errors.Newf("invalid json payload (%d bytes)", len(payload))
	}
	msg := &Message{Endpoint: sub.endpoint, Stream: sub.address, Data: payload}
	if !sub.combined {
		return msg, nil
	}

	var env combinedEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Stream != "" && len(env.Data) > 0 {
		msg.Stream = StreamAddress(env.Stream)
		msg.Data = env.Data
	} else {
		// 组合流上的非信封消息原样转发
		msg.Stream = ""
	}
	return msg, nil
}

// evict 把 sub 从endpoint表移到detached集合. 只有当 sub 仍是当前条目时才移除
func (sm *SubscriptionManager) evict(sub *subscription) bool {
	current, ok := sm.subscriptions[sub.endpoint]
	if ok && current == sub {
		delete(sm.subscriptions, sub.endpoint)
		sm.detached[sub.conn.ID()] = sub
		sm.updateGauges()
		return true
	}
	return false
}

// forget 不再跟踪该连接
func (sm *SubscriptionManager) forget(sub *subscription) {
	if current, ok := sm.subscriptions[sub.endpoint]; ok && current == sub {
		delete(sm.subscriptions, sub.endpoint)
	}
	delete(sm.detached, sub.conn.ID())
	sm.updateGauges()
}

func (sm *SubscriptionManager) handleOpen(sub *subscription) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.detached[sub.conn.ID()]; !ok {
		sm.log.Info("stream connected", zap.String(logger.FieldNameEndpoint, sub.endpoint))
		return
	}
	if _, taken := sm.subscriptions[sub.endpoint]; taken {
		sm.log.Warn("reconnected stream left detached, endpoint has a newer subscription",
			zap.String(logger.FieldNameEndpoint, sub.endpoint),
			zap.String(logger.FieldNameConnID, sub.conn.ID()))
		return
	}
	delete(sm.detached, sub.conn.ID())
	sm.subscriptions[sub.endpoint] = sub
	sm.updateGauges()
	sm.log.Info("stream reconnected, subscription restored",
		zap.String(logger.FieldNameEndpoint, sub.endpoint))
}

func (sm *SubscriptionManager) handleError(sub *subscription, ev stream.Event) {
	sm.mu.Lock()
	evicted := sm.evict(sub)
	sm.mu.Unlock()

	sm.log.RatedWarn(1, "stream error",
		zap.String(logger.FieldNameEndpoint, ev.Endpoint),
		zap.Bool("evicted", evicted),
		zap.Error(ev.Err))
}

func (sm *SubscriptionManager) handleClose(sub *subscription, ev stream.Event) {
	sm.mu.Lock()
	evicted := sm.evict(sub)
	if stream.IsNormalClose(ev.Code) {
		sm.forget(sub)
	}
	sm.mu.Unlock()

	sm.log.Warn("stream closed",
		zap.String(logger.FieldNameEndpoint, ev.Endpoint),
		zap.Int("code", ev.Code),
		zap.Bool("evicted", evicted))
}

func (sm *SubscriptionManager) handleFailed(sub *subscription) {
	sm.mu.Lock()
	sm.forget(sub)
	sm.mu.Unlock()

	sm.log.Error("stream abandoned after reconnect attempts",
		zap.String(logger.FieldNameEndpoint, sub.endpoint),
		zap.Int("max_attempts", sm.cfg.MaxReconnectAttempts))
}

// updateGauges 调用方持有 sm.mu
func (sm *SubscriptionManager) updateGauges() {
	sm.metrics.SetEndpoints(len(sm.subscriptions))
	sm.metrics.SetDetached(len(sm.detached))
}

// CloseEndpoint 正常关闭某个流地址上的连接, 共享该endpoint的所有回调一起停止.
// 该endpoint上仍在重连的detached连接也一起关闭. 不存在时返回 false
func (sm *SubscriptionManager) CloseEndpoint(address StreamAddress, combined bool) bool {
	endpoint := sm.Endpoint(address, combined)

	sm.mu.Lock()
	var subs []*subscription
	if sub, ok := sm.subscriptions[endpoint]; ok {
		subs = append(subs, sub)
	}
	for _, sub := range sm.detached {
		if sub.endpoint == endpoint {
			subs = append(subs, sub)
		}
	}
	for _, sub := range subs {
		sm.forget(sub)
	}
	sm.mu.Unlock()

	if len(subs) == 0 {
		return false
	}
	for _, sub := range subs {
		if err := sub.conn.Close(); err != nil {
			sm.log.Warn("close subscription", zap.String(logger.FieldNameEndpoint, endpoint), zap.Error(err))
		}
	}
	sm.log.Info("subscription closed", zap.String(logger.FieldNameEndpoint, endpoint), zap.Int("connections", len(subs)))
	return true
}

// Subscribed 流地址上是否还有归注册表所有的连接(登记的或仍在重连的)
func (sm *SubscriptionManager) Subscribed(address StreamAddress, combined bool) bool {
	endpoint := sm.Endpoint(address, combined)

	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, ok := sm.subscriptions[endpoint]; ok {
		return true
	}
	for _, sub := range sm.detached {
		if sub.endpoint == endpoint {
			return true
		}
	}
	return false
}

// CloseSubscription 关闭单流订阅
func (sm *SubscriptionManager) CloseSubscription(s Stream) bool {
	if err := s.Validate(); err != nil {
		sm.log.Warn("close subscription with invalid stream", zap.String("kind", string(s.Kind())), zap.Error(err))
		return false
	}
	return sm.CloseEndpoint(s.Address(), false)
}

// CloseCombined 关闭组合流订阅, 流的顺序必须和订阅时一致
func (sm *SubscriptionManager) CloseCombined(streams ...Stream) bool {
	address, err := CombineStreams(streams...)
	if err != nil {
		sm.log.Warn("close combined subscription with invalid streams", zap.Error(err))
		return false
	}
	return sm.CloseEndpoint(address, true)
}

// CloseAll 关闭所有连接(包括detached的)并清空注册表
func (sm *SubscriptionManager) CloseAll() {
	sm.mu.Lock()
	subs := make([]*subscription, 0, len(sm.subscriptions)+len(sm.detached))
	for _, sub := range sm.subscriptions {
		subs = append(subs, sub)
	}
	for _, sub := range sm.detached {
		subs = append(subs, sub)
	}
	sm.subscriptions = make(map[string]*subscription)
	sm.detached = make(map[string]*subscription)
	sm.updateGauges()
	sm.mu.Unlock()

	for _, sub := range subs {
		if err := sub.conn.Close(); err != nil {
			sm.log.Warn("close connection", zap.String(logger.FieldNameEndpoint, sub.endpoint), zap.Error(err))
		}
	}
	sm.log.Info("all subscriptions closed", zap.Int("connections", len(subs)))
}

// Has endpoint 是否有登记的订阅
func (sm *SubscriptionManager) Has(endpoint string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, ok := sm.subscriptions[endpoint]
	return ok
}

// Endpoints 已登记的endpoint, 按字典序
func (sm *SubscriptionManager) Endpoints() []string {
	sm.mu.Lock()
	out := make([]string, 0, len(sm.subscriptions))
	for endpoint := range sm.subscriptions {
		out = append(out, endpoint)
	}
	sm.mu.Unlock()
	sort.Strings(out)
	return out
}

// DetachedCount 仍在重连中的未登记连接数
func (sm *SubscriptionManager) DetachedCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.detached)
}

// Stats 所有连接的快照, 登记的在前
func (sm *SubscriptionManager) Stats() []SubscriptionStats {
	sm.mu.Lock()
	stats := make([]SubscriptionStats, 0, len(sm.subscriptions)+len(sm.detached))
	for _, sub := range sm.subscriptions {
		stats = append(stats, sub.stats(false))
	}
	for _, sub := range sm.detached {
		stats = append(stats, sub.stats(true))
	}
	sm.mu.Unlock()

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Detached != stats[j].Detached {
			return !stats[i].Detached
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

func (s *subscription) stats(detached bool) SubscriptionStats {
	return SubscriptionStats{
		Endpoint:  s.endpoint,
		Address:   s.address.String(),
		Combined:  s.combined,
		ConnID:    s.conn.ID(),
		State:     s.conn.State().String(),
		Attempts:  s.conn.Attempts(),
		Callbacks: s.callbacks,
		Detached:  detached,
	}
}
