package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/pkg/logger"
)

// HeaderRequestID 请求ID响应头
const HeaderRequestID = "X-Request-ID"

func registerRoutes(r *gin.Engine, h *handler) {
	r.Use(requestLogger(), recovery(), cors())

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := r.Group("/api")
	{
		// 行情
		api.GET("/tickers", h.listTickers)
		api.GET("/tickers/:symbol", h.getTicker)

		// 交易对列表
		api.GET("/symbols", h.listSymbols)
		api.POST("/symbols", h.addSymbol)
		api.POST("/symbols/reset", h.resetSymbols)
		api.DELETE("/symbols/:symbol", h.removeSymbol)

		// 图表
		api.GET("/charts/:symbol", h.getChart)
		api.DELETE("/charts/:symbol", h.removeChart)

		api.GET("/streams", h.listStreams)
	}
}

// requestLogger 为每个请求生成请求ID并挂到日志上下文
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), id))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Ctx(c.Request.Context()).Warn("HTTP request failed", fields...)
			return
		}
		logger.Ctx(c.Request.Context()).Debug("HTTP request", fields...)
	}
}

func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Ctx(c.Request.Context()).Error("HTTP handler panic",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
