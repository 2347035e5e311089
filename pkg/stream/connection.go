package stream

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/pkg/logger"
	"github.com/riven-blade/pricedash/pkg/metrics"
)

// Connection 单个endpoint上的WebSocket连接, 负责重连状态机和消息分发
type Connection struct {
	id       string
	endpoint string
	cfg      Config
	dialer   Dialer
	metrics  *metrics.Metrics
	log      *logger.MLogger

	state    atomic.Int32
	attempts atomic.Int32
	closed   atomic.Bool

	mu     sync.Mutex
	conn   *websocket.Conn
	timer  *time.Timer
	cancel context.CancelFunc

	handlersMu      sync.RWMutex
	messageHandlers []MessageHandler
	errorHandlers   []EventHandler
	openHandler     EventHandler
	closeHandler    EventHandler
	failedHandler   EventHandler
}

// Option 连接选项
type Option func(*Connection)

// WithDialer 替换默认的 websocket.Dialer
func WithDialer(d Dialer) Option {
	return func(c *Connection) {
		c.dialer = d
	}
}

// WithMetrics 设置指标集合, nil 关闭指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

// NewConnection 创建连接, 不会立即拨号
func NewConnection(endpoint string, cfg Config, opts ...Option) (*Connection, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidEndpoint, "parse %q: %v", endpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, errors.Wrapf(ErrInvalidEndpoint, "scheme %q", u.Scheme)
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}

	c := &Connection{
		id:       uuid.NewString(),
		endpoint: endpoint,
		cfg:      cfg,
		metrics:  metrics.Default(),
	}
	c.dialer = &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.With(
		zap.String(logger.FieldNameEndpoint, endpoint),
		zap.String(logger.FieldNameConnID, c.id))
	return c, nil
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) Endpoint() string { return c.endpoint }
func (c *Connection) State() State     { return State(c.state.Load()) }

// Attempts 当前连续重连次数, 连接成功后清零
func (c *Connection) Attempts() int { return int(c.attempts.Load()) }

func (c *Connection) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.metrics.ObserveState(s.String())
	}
}

// OnMessage 追加消息处理器, 按注册顺序调用
func (c *Connection) OnMessage(h MessageHandler) {
	c.handlersMu.Lock()
	c.messageHandlers = append(c.messageHandlers, h)
	c.handlersMu.Unlock()
}

// OnError 追加错误处理器
func (c *Connection) OnError(h EventHandler) {
	c.handlersMu.Lock()
	c.errorHandlers = append(c.errorHandlers, h)
	c.handlersMu.Unlock()
}

// OnOpen 设置open处理器, 后注册的覆盖先注册的
func (c *Connection) OnOpen(h EventHandler) {
	c.handlersMu.Lock()
	c.openHandler = h
	c.handlersMu.Unlock()
}

// OnClose 设置close处理器, 后注册的覆盖先注册的
func (c *Connection) OnClose(h EventHandler) {
	c.handlersMu.Lock()
	c.closeHandler = h
	c.handlersMu.Unlock()
}

// OnFailed 设置重连耗尽时的处理器
func (c *Connection) OnFailed(h EventHandler) {
	c.handlersMu.Lock()
	c.failedHandler = h
	c.handlersMu.Unlock()
}

// Connect 异步拨号. 已连接或正在连接时为空操作
func (c *Connection) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	switch c.State() {
	case StateConnected, StateConnecting:
		return nil
	case StateFailed:
		return ErrReconnectExhausted
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.setState(StateConnecting)

	go c.run(ctx)
	return nil
}

// run 拨号成功后在同一个goroutine里读消息, 直到连接断开
func (c *Connection) run(ctx context.Context) {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.closed.Load() {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.setState(StateDisconnected)
		c.mu.Unlock()

		c.log.RatedWarn(1, "WebSocket dial failed", zap.Error(err))
		c.emitError(err)
		c.handleClose(websocket.CloseAbnormalClosure)
		return
	}
	c.conn = conn
	c.attempts.Store(0)
	c.setState(StateConnected)
	c.mu.Unlock()

	c.log.Info("WebSocket connected")
	c.emit(c.getOpenHandler(), Event{})

	c.readLoop(conn)
}

func (c *Connection) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := closeCode(err)
			if c.closed.Load() {
				code = websocket.CloseNormalClosure
			} else if code == websocket.CloseAbnormalClosure {
				// 没有收到关闭帧的断开同时算作传输错误
				c.emitError(err)
			}

			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()

			c.handleClose(code)
			return
		}

		c.metrics.MessageReceived()
		c.dispatch(data)
	}
}

func (c *Connection) dispatch(data []byte) {
	c.handlersMu.RLock()
	handlers := make([]MessageHandler, len(c.messageHandlers))
	copy(handlers, c.messageHandlers)
	c.handlersMu.RUnlock()

	for i, h := range handlers {
		c.safeDispatch(i, h, data)
	}
}

func (c *Connection) safeDispatch(idx int, h MessageHandler, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.HandlerPanic()
			c.log.Error("message handler panicked",
				zap.Int("handler", idx),
				zap.Any("panic", r))
		}
	}()
	h(data)
}

func (c *Connection) emitError(err error) {
	c.metrics.TransportError()

	c.handlersMu.RLock()
	handlers := make([]EventHandler, len(c.errorHandlers))
	copy(handlers, c.errorHandlers)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		c.emit(h, Event{Err: err})
	}
}

func (c *Connection) emit(h EventHandler, ev Event) {
	if h == nil {
		return
	}
	ev.Endpoint = c.endpoint
	ev.ConnID = c.id
	defer func() {
		if r := recover(); r != nil {
			c.metrics.HandlerPanic()
			c.log.Error("event handler panicked", zap.Any("panic", r))
		}
	}()
	h(ev)
}

func (c *Connection) getOpenHandler() EventHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.openHandler
}

func (c *Connection) getCloseHandler() EventHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.closeHandler
}

func (c *Connection) getFailedHandler() EventHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.failedHandler
}

func (c *Connection) handleClose(code int) {
	c.setState(StateDisconnected)
	c.log.Warn("WebSocket closed", zap.Int("code", code))
	c.emit(c.getCloseHandler(), Event{Code: code})

	if c.closed.Load() || IsNormalClose(code) {
		return
	}
	c.scheduleReconnect()
}

func (c *Connection) scheduleReconnect() {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return
	}

	attempt := int(c.attempts.Inc())
	if c.cfg.MaxReconnectAttempts > 0 && attempt > c.cfg.MaxReconnectAttempts {
		c.setState(StateFailed)
		c.mu.Unlock()

		c.metrics.ReconnectExhausted()
		c.log.Error("Max reconnect attempts reached, giving up",
			zap.Int("max_attempts", c.cfg.MaxReconnectAttempts))
		c.emit(c.getFailedHandler(), Event{Err: ErrReconnectExhausted})
		return
	}

	c.setState(StateReconnecting)
	c.metrics.ReconnectAttempt()
	c.log.Info("Reconnecting",
		zap.Int("attempt", attempt),
		zap.Duration("interval", c.cfg.ReconnectInterval))
	c.timer = time.AfterFunc(c.cfg.ReconnectInterval, c.reconnect)
	c.mu.Unlock()
}

func (c *Connection) reconnect() {
	c.mu.Lock()
	c.timer = nil
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		c.log.Debug("reconnect skipped", zap.Error(err))
	}
}

// Close 主动关闭: 发送1000关闭帧, 取消待执行的重连, 不再重连
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed.Swap(true) {
		c.mu.Unlock()
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	conn := c.conn
	c.setState(StateDisconnected)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "close websocket")
	}
	return nil
}
