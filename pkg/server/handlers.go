package server

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/riven-blade/pricedash/core"
	"github.com/riven-blade/pricedash/pkg/binance"
	"github.com/riven-blade/pricedash/pkg/metrics"
	"github.com/riven-blade/pricedash/pkg/utils"
	"github.com/riven-blade/pricedash/storage"
)

// StreamStats 订阅注册表的统计来源, *binance.SubscriptionManager 满足该接口
type StreamStats interface {
	Stats() []binance.SubscriptionStats
}

var _ StreamStats = (*binance.SubscriptionManager)(nil)

// Deps 路由依赖
type Deps struct {
	Dashboard *core.Dashboard
	Streams   StreamStats
	Storage   storage.KVStorage
	Metrics   *metrics.Metrics

	// Now 计算 updated 字段的当前时间, 为空时使用 time.Now
	Now func() time.Time
}

func (d Deps) validate() error {
	if d.Dashboard == nil {
		return errors.New("server: dashboard is required")
	}
	if d.Streams == nil {
		return errors.New("server: stream stats source is required")
	}
	if d.Storage == nil {
		return errors.New("server: storage is required")
	}
	return nil
}

type handler struct {
	dashboard *core.Dashboard
	streams   StreamStats
	storage   storage.KVStorage
	metrics   *metrics.Metrics
	now       func() time.Time
}

func newHandler(deps Deps) *handler {
	h := &handler{
		dashboard: deps.Dashboard,
		streams:   deps.Streams,
		storage:   deps.Storage,
		metrics:   deps.Metrics,
		now:       deps.Now,
	}
	if h.metrics == nil {
		h.metrics = metrics.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// TickerView 接口返回的行情行
type TickerView struct {
	core.Ticker
	Updated string `json:"updated,omitempty"`
}

func (h *handler) view(t core.Ticker) TickerView {
	v := TickerView{Ticker: t}
	if t.Time > 0 {
		v.Updated = utils.Ago(t.Time/1000, h.now())
	}
	return v
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// GET /healthz
func (h *handler) health(c *gin.Context) {
	healthy := h.storage.IsHealthy()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":  http.StatusText(status),
		"storage": storage.Stats(h.storage),
	})
}

// GET /api/tickers
func (h *handler) listTickers(c *gin.Context) {
	tickers := h.dashboard.Tickers()
	out := make([]TickerView, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, h.view(t))
	}
	c.JSON(http.StatusOK, gin.H{"tickers": out})
}

// GET /api/tickers/:symbol
func (h *handler) getTicker(c *gin.Context) {
	symbol := c.Param("symbol")
	t, ok := h.dashboard.Ticker(symbol)
	if !ok {
		abortWithError(c, http.StatusNotFound, errors.Newf("no ticker for %q", symbol))
		return
	}
	c.JSON(http.StatusOK, h.view(t))
}

// GET /api/symbols
func (h *handler) listSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": h.dashboard.Symbols()})
}

// POST /api/symbols
func (h *handler) addSymbol(c *gin.Context) {
	var req storage.Symbol
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}

	added, err := h.dashboard.AddCoinPair(c.Request.Context(), req)
	switch {
	case errors.Is(err, core.ErrEmptySymbol):
		abortWithError(c, http.StatusBadRequest, err)
		return
	case err != nil:
		abortWithError(c, storageStatus(err), err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	s, _ := h.dashboard.Symbol(req.Symbol)
	c.JSON(status, gin.H{"added": added, "symbol": s})
}

// DELETE /api/symbols/:symbol
func (h *handler) removeSymbol(c *gin.Context) {
	err := h.dashboard.RemoveCoinPair(c.Request.Context(), c.Param("symbol"))
	switch {
	case errors.Is(err, core.ErrSymbolNotFound):
		abortWithError(c, http.StatusNotFound, err)
	case err != nil:
		abortWithError(c, storageStatus(err), err)
	default:
		c.Status(http.StatusNoContent)
	}
}

// POST /api/symbols/reset
func (h *handler) resetSymbols(c *gin.Context) {
	symbols, err := h.dashboard.ResetToDefaults(c.Request.Context())
	if err != nil {
		abortWithError(c, storageStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

// GET /api/charts/:symbol?interval=1m
// 第一次请求时建立K线订阅, 收到第一根K线之前返回 202
func (h *handler) getChart(c *gin.Context) {
	symbol := utils.NormalizeSymbol(c.Param("symbol"))
	interval := c.Query("interval")

	if k, ok := h.dashboard.Chart(symbol, interval); ok {
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "kline": k})
		return
	}
	if err := h.dashboard.SubscribeChart(symbol, interval); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"symbol": symbol, "interval": interval, "pending": true})
}

// DELETE /api/charts/:symbol?interval=1m
func (h *handler) removeChart(c *gin.Context) {
	symbol := c.Param("symbol")
	interval := c.Query("interval")
	if !h.dashboard.UnsubscribeChart(symbol, interval) {
		abortWithError(c, http.StatusNotFound, errors.Newf("no chart subscription for %s %s", symbol, interval))
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/streams
func (h *handler) listStreams(c *gin.Context) {
	stats := h.streams.Stats()
	detached := 0
	for _, s := range stats {
		if s.Detached {
			detached++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"streams":  stats,
		"total":    len(stats),
		"detached": detached,
	})
}

// storageStatus 可重试的存储错误返回 503, 其余 500
func storageStatus(err error) int {
	if storage.IsRetryableError(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
