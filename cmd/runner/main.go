package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"dip-buyer-go/balance"
	"dip-buyer-go/config"
	"dip-buyer-go/gateway"
	"dip-buyer-go/infrastructure/logger"
	"dip-buyer-go/internal/engine"
	"dip-buyer-go/internal/store"
	"dip-buyer-go/ledger"
	"dip-buyer-go/market"
	"dip-buyer-go/metrics"
	"dip-buyer-go/notify"
	"dip-buyer-go/order"
	"dip-buyer-go/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "dotenv 文件路径（不存在则忽略）")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置文件")
	flag.Parse()

	// dotenv 先于配置加载，环境变量覆盖敏感字段
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load: %v", err)
	}

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		// 配置错误是唯一允许的硬退出
		log.Fatalf("加载配置失败: %v", err)
	}

	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	addr := cfg.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		metrics.StartMetricsServer(addr)
		zlog.Info("metrics server listening", zap.String("addr", addr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := gateway.NewBinanceGateway(gateway.BinanceConfig{
		APIKey:            cfg.Gateway.APIKey,
		APISecret:         cfg.Gateway.APISecret,
		BaseURL:           cfg.Gateway.BaseURL,
		Testnet:           cfg.Gateway.Testnet,
		RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
		Burst:             cfg.Gateway.Burst,
	})

	// 通知通道：telegram 可选，日志通道兜底
	channels := []notify.Channel{notify.NewLogChannel(zlog.Logger)}
	if cfg.Telegram.Enabled {
		channels = append(channels, notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	dispatcher := notify.NewDispatcher(channels, 64, zlog.Logger)
	defer dispatcher.Close()

	led := ledger.New(zlog.Logger)
	bal := balance.NewManager(gw, cfg.Symbols, cfg.Trading.USDTReserve, zlog.Logger)
	mkt := market.NewService(gw, cfg.Symbols, zlog.Logger)

	mgr := order.NewManager(gw, led, order.ManagerConfig{
		Symbols:       cfg.Symbols,
		ExpiryWindow:  cfg.Trading.ExpiryWindow(),
		PollInterval:  time.Duration(cfg.Intervals.PollSeconds) * time.Second,
		SweepInterval: time.Duration(cfg.Intervals.SweepSeconds) * time.Second,
	}, zlog.Logger)
	mgr.SetNotifier(dispatcher)
	mgr.SetBalance(bal)

	// 交易对精度限制一次性预热；失败的交易对会在下单时被拒
	constraints := make(map[string]order.SymbolConstraints, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		f, err := gw.GetSymbolFilters(ctx, symbol)
		if err != nil {
			zlog.Warn("symbol filters unavailable", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		constraints[symbol] = order.SymbolConstraints{
			TickSize:    f.TickSize,
			StepSize:    f.StepSize,
			MinQty:      f.MinQty,
			MaxQty:      f.MaxQty,
			MinNotional: f.MinNotional,
		}
	}
	mgr.SetConstraints(constraints)

	strat, err := strategy.NewEngine(cfg.Thresholds)
	if err != nil {
		log.Fatalf("初始化策略失败: %v", err)
	}

	eng := engine.New(cfg, gw, mkt, led, bal, mgr, strat, zlog.Logger)
	eng.SetNotifier(dispatcher)

	// 持久化与开机对账（可选）
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			zlog.Error("open store failed, running without persistence", zap.Error(err))
		} else {
			mgr.SetStore(st)
			led.SetStore(st)
			if err := eng.RestoreFromStore(ctx, st); err != nil {
				zlog.Warn("boot-time reconcile failed", zap.Error(err))
			}
		}
	}

	// 实时价格流
	stream := market.NewPriceStream(cfg.Symbols, mkt, zlog.Logger)
	go stream.Run(ctx)

	// 配置热更新
	go func() {
		watcher := config.Watcher{Path: *cfgPath, Log: zlog.Logger}
		if err := watcher.Start(ctx, eng.ApplyConfig); err != nil && ctx.Err() == nil {
			zlog.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("启动引擎失败: %v", err)
	}
	dispatcher.Send(fmt.Sprintf("🤖 Dip buyer started\nSymbols: %v\nThresholds: %v", cfg.Symbols, cfg.Thresholds))
	zlog.Info("dip buyer running", zap.Strings("symbols", cfg.Symbols), zap.Float64s("thresholds", cfg.Thresholds))

	<-ctx.Done()
	zlog.Info("shutdown signal received")
	eng.Stop()
	zlog.Info("shutdown complete")
}
