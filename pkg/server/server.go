// Package server 提供价格面板的HTTP API
package server

import (
	"context"
	"net"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/pkg/logger"
)

var (
	ErrServerRunning    = errors.New("server already running")
	ErrServerNotRunning = errors.New("server not running")
)

// Server gin HTTP服务
type Server struct {
	cfg     *Config
	engine  *gin.Engine
	httpSrv *http.Server

	listener net.Listener
	running  atomic.Bool
	done     chan struct{}
}

// New 创建服务并注册路由
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	gin.SetMode(cfg.Mode)
	engine := gin.New()
	registerRoutes(engine, newHandler(deps))

	return &Server{
		cfg:    cfg,
		engine: engine,
		httpSrv: &http.Server{
			Addr:         cfg.Address,
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}, nil
}

// Handler 返回路由, 测试中直接配合 httptest 使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr 实际监听地址, 未启动时为配置地址
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Address
}

// Start 监听端口并在后台提供服务. 监听失败会直接返回
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		s.running.Store(false)
		return errors.Wrapf(err, "listen %s", s.cfg.Address)
	}
	s.listener = ln
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}()

	logger.Info("HTTP server started",
		zap.String("address", ln.Addr().String()),
		zap.String("mode", s.cfg.Mode))
	return nil
}

// Shutdown 优雅关闭, 最多等待 ShutdownTimeout
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpSrv.Shutdown(ctx)
	<-s.done
	if err != nil {
		return errors.Wrap(err, "shutdown http server")
	}

	logger.Info("HTTP server stopped")
	return nil
}
