package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	config "github.com/NordCoder/doggy-auth/internal/config/auth-api"
	"github.com/NordCoder/doggy-auth/internal/obs"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTH_API_CONFIG"), "path to a YAML config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting auth-api", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	otelShutdown, err := initOTel(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	st, err := initStorage(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init", zap.Error(err))
	}
	defer st.close()

	identity, err := initIdentity(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("identity provider init", zap.Error(err))
	}

	// Background workers get their own context so they outlive in-flight requests
	// during shutdown.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()
	waitOutbox := startOutbox(workCtx, cfg, st, logger)

	httpSrv, err := buildHTTPServer(workCtx, cfg, logger, st, identity)
	if err != nil {
		logger.Fatal("build http", zap.Error(err))
	}
	metricsSrv := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, st.ping, logger)

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, logger) }()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shCtx)

	stopWork()
	waitOutbox()
	logger.Info("bye")
}
