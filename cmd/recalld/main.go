// recalld 是召回服务进程：加载配置、预热缓存、运行后台刷新与运维 HTTP 服务。
//
//	recalld -config /etc/recalld/recalld.yaml
//
// 任一配置项都可以用环境变量覆盖，例如 RECALLKIT_REDIS__ADDR=redis:6379。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/server"
)

func main() {
	configPath := flag.String("config", "recalld.yaml", "config file path (optional)")
	flag.Parse()

	log := logging.Component("main")
	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Init(cfg.Logging)
	log = logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, *cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init app")
	}
	defer app.Close()

	warmCtx, cancel := context.WithTimeout(ctx, cfg.Cache.RefreshTimeout)
	if err := app.Warmup(warmCtx); err != nil {
		log.Warn().Err(err).Msg("warmup failed, serving with cold caches")
	}
	cancel()

	if cfg.Metrics.Addr != "" {
		app.Add(app.NewHTTPService(cfg.Metrics.Addr))
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("http listening")
	}

	start := time.Now()
	if err := app.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("supervisor stopped")
		_ = app.Close()
		os.Exit(1)
	}
	log.Info().Dur("uptime", time.Since(start)).Msg("stopped")
}
