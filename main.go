package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/riven-blade/pricedash/config"
	"github.com/riven-blade/pricedash/core"
	"github.com/riven-blade/pricedash/pkg/binance"
	"github.com/riven-blade/pricedash/pkg/logger"
	"github.com/riven-blade/pricedash/pkg/metrics"
	"github.com/riven-blade/pricedash/pkg/server"
	"github.com/riven-blade/pricedash/storage"
)

type services struct {
	kv        storage.KVStorage
	dashboard *core.Dashboard
	server    *server.Server
}

func main() {
	ctx := context.Background()

	// 加载配置
	cfg, path, found, err := config.LoadFromEnv()
	if err != nil {
		logger.Ctx(ctx).Fatal("Failed to load config", zap.String("path", path), zap.Error(err))
	}

	if err := logger.Init(cfg.Log); err != nil {
		logger.Ctx(ctx).Fatal("Failed to init logger", zap.Error(err))
	}
	if found {
		logger.Ctx(ctx).Info("Config loaded", zap.String("path", path))
	} else {
		logger.Ctx(ctx).Info("Config file not found, using default config", zap.String("path", path))
	}

	logger.Ctx(ctx).Info("Starting price dashboard", zap.String("name", cfg.Name))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, err := startServices(ctx, cfg)
	if err != nil {
		logger.Ctx(ctx).Fatal("Failed to start services", zap.Error(err))
	}

	waitForShutdown(ctx, cancel, cfg, svc)

	logger.Ctx(ctx).Info("Price dashboard stopped gracefully")
	_ = logger.Sync()
}

func startServices(ctx context.Context, cfg *config.Config) (*services, error) {
	m := metrics.Default()

	intentCtx, span := logger.NewIntentContext(cfg.Name, "startServices")
	defer span.End()

	// 1. 交易对存储, Redis不可用时退回内存
	kv := storage.NewKVStorageWithFallback(ctx, cfg.Storage)
	store, err := storage.NewSymbolStore(kv)
	if err != nil {
		return nil, err
	}

	// 2. 行情订阅
	client, err := binance.NewClient(cfg.Stream, binance.WithManagerMetrics(m))
	if err != nil {
		return nil, errors.Wrap(err, "create binance client")
	}

	// 3. 面板
	dashboard := core.NewDashboard(client, store, core.WithMetrics(m))
	if err := dashboard.Start(intentCtx); err != nil {
		return nil, errors.Wrap(err, "start dashboard")
	}

	// 4. HTTP API
	srv, err := server.New(server.FromAppConfig(cfg), server.Deps{
		Dashboard: dashboard,
		Streams:   client.Manager(),
		Storage:   kv,
		Metrics:   m,
	})
	if err != nil {
		_ = dashboard.Stop()
		return nil, errors.Wrap(err, "create http server")
	}
	if err := srv.Start(); err != nil {
		_ = dashboard.Stop()
		return nil, err
	}

	logger.Ctx(intentCtx).Info("All services started",
		zap.String("address", srv.Addr()),
		zap.String("storage", cfg.Storage.Type),
		zap.Int("symbols", len(dashboard.Symbols())))

	return &services{kv: kv, dashboard: dashboard, server: srv}, nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, svc *services) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Ctx(ctx).Info("Received shutdown signal", zap.String("signal", sig.String()))

	// 超时强制退出
	timeout := cfg.Server.ShutdownTimeout + 5*time.Second
	go func() {
		time.Sleep(timeout)
		logger.Ctx(context.Background()).Error("Force shutdown after timeout")
		os.Exit(1)
	}()

	if err := svc.server.Shutdown(ctx); err != nil {
		logger.Ctx(ctx).Error("Failed to stop HTTP server gracefully", zap.Error(err))
	}
	if err := svc.dashboard.Stop(); err != nil {
		logger.Ctx(ctx).Error("Failed to stop dashboard", zap.Error(err))
	}
	if err := svc.kv.Close(); err != nil {
		logger.Ctx(ctx).Error("Failed to close storage", zap.Error(err))
	}

	cancel()
}
