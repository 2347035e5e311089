package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricedash"

// Metrics 行情订阅相关的Prometheus指标
// nil 接收者上的所有方法都是空操作, 用于关闭指标
type Metrics struct {
	registry *prometheus.Registry

	stateTransitions   *prometheus.CounterVec // 连接状态迁移次数, 按目标状态
	reconnectAttempts  prometheus.Counter
	reconnectExhausted prometheus.Counter
	messagesReceived   prometheus.Counter
	transportErrors    prometheus.Counter
	handlerPanics      prometheus.Counter

	subscriptions     prometheus.Gauge // 当前注册的endpoint数量
	detached          prometheus.Gauge // 已从注册表移除但仍在重连的连接
	subscribeFailures prometheus.Counter
	decodeFailures    prometheus.Counter

	tickerUpdates prometheus.Counter
}

var defaultMetrics = New()

// Default 返回进程级共享的指标集合
func Default() *Metrics {
	return defaultMetrics
}

// New 创建并注册一组独立的指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state_transitions_total",
			Help:      "Connection state transitions by target state",
		}, []string{"state"}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts",
		}),

		reconnectExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_exhausted_total",
			Help:      "Connections that gave up after max reconnect attempts",
		}),

		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Inbound messages read from all connections",
		}),

		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "transport_errors_total",
			Help:      "Transport level errors reported to error handlers",
		}),

		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "handler_panics_total",
			Help:      "Recovered panics raised by message handlers",
		}),

		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "endpoints",
			Help:      "Endpoints currently tracked by the subscription registry",
		}),

		detached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "detached_connections",
			Help:      "Evicted connections still owned by the registry",
		}),

		subscribeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "subscribe_failures_total",
			Help:      "Subscribe calls that failed during setup",
		}),

		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "decode_failures_total",
			Help:      "Inbound payloads dropped because they were not valid JSON",
		}),

		tickerUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "ticker_updates_total",
			Help:      "Ticker updates applied to the board",
		}),
	}

	m.registry.MustRegister(
		m.stateTransitions,
		m.reconnectAttempts,
		m.reconnectExhausted,
		m.messagesReceived,
		m.transportErrors,
		m.handlerPanics,
		m.subscriptions,
		m.detached,
		m.subscribeFailures,
		m.decodeFailures,
		m.tickerUpdates,
	)
	return m
}

// Registry 返回底层的Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler 返回 /metrics 的HTTP处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveState(state string) {
	if m == nil {
		return
	}
	m.stateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) ReconnectExhausted() {
	if m == nil {
		return
	}
	m.reconnectExhausted.Inc()
}

func (m *Metrics) MessageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) TransportError() {
	if m == nil {
		return
	}
	m.transportErrors.Inc()
}

func (m *Metrics) HandlerPanic() {
	if m == nil {
		return
	}
	m.handlerPanics.Inc()
}

func (m *Metrics) SetEndpoints(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

func (m *Metrics) SetDetached(n int) {
	if m == nil {
		return
	}
	m.detached.Set(float64(n))
}

func (m *Metrics) SubscribeFailure() {
	if m == nil {
		return
	}
	m.subscribeFailures.Inc()
}

func (m *Metrics) DecodeFailure() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

func (m *Metrics) TickerUpdate() {
	if m == nil {
		return
	}
	m.tickerUpdates.Inc()
}
