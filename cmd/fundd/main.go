// fundd 份额制资金池服务：HTTP API + 事件流水 + 定时权益快照
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/betbot/sharefund/internal/metrics"
	"github.com/betbot/sharefund/pkg/config"
	"github.com/betbot/sharefund/pkg/logger"
	"github.com/betbot/sharefund/pkg/shutdown"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("SHAREFUND_CONFIG"), "配置文件路径（.yaml/.yml/.json），为空则只用环境变量")
		listenAddr = flag.String("listen", "", "覆盖 server.listen")
	)
	flag.Parse()

	config.SetConfigPath(*configPath)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Listen = *listenAddr
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
		JSON:       cfg.Log.JSON,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := logrus.WithField("component", "fundd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	log.Infof("基金已就绪: %s", a.describe())

	sm := shutdown.NewManager()
	// 逆序执行：先停 HTTP 与调度，最后关闭存储
	sm.OnShutdown("backend", func(context.Context) error {
		a.backend.close()
		return nil
	})
	sm.OnShutdown("state-store", func(context.Context) error { return a.store.Close() })
	sm.OnShutdown("journal", func(context.Context) error { return a.journal.Close() })

	a.scheduler.Start()
	sm.OnShutdown("scheduler", func(context.Context) error {
		a.scheduler.Stop()
		return nil
	})

	if cfg.MetricsAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.MetricsAddr, a.debugStatus); err != nil {
			log.Warnf("metrics 服务启动失败: %v", err)
		} else {
			log.Infof("metrics: http://%s/debug/vars, http://%s/debug/fund", cfg.MetricsAddr, cfg.MetricsAddr)
		}
	}

	hs, err := a.server.Start(ctx, cfg.Listen)
	if err != nil {
		log.Errorf("HTTP 服务启动失败: %v", err)
		sm.Shutdown(context.Background())
		os.Exit(1)
	}
	sm.OnShutdown("http", func(ctx context.Context) error { return hs.Shutdown(ctx) })

	sig := shutdown.WaitForSignal(ctx)
	log.Infof("收到信号 %v，开始退出", sig)
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if failed := sm.Shutdown(shutdownCtx); failed > 0 {
		os.Exit(1)
	}
}
