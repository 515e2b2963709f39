package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange_connector/internal/config"
	"exchange_connector/internal/exchange"
	"exchange_connector/internal/metrics"
	"exchange_connector/internal/model"
	"exchange_connector/pkg/logging"
	"exchange_connector/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		// Logger is not up yet
		panic(err)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		panic(err)
	}

	logger.Info("starting exchange connector",
		"mode", string(cfg.Exchange.Mode),
		"network", string(cfg.Exchange.Network))

	tel, err := telemetry.Setup("exchange_connector")
	if err != nil {
		logger.Fatal("telemetry setup failed", "error", err)
	}

	var metricsSrv *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsSrv.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	client, err := exchange.NewClient(startCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("connector startup failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Seed the cache with REST snapshots for the watched symbols so quotes
	// are available before the first stream tick lands
	g.Go(func() error {
		watched := make([]model.Contract, 0, len(cfg.Trading.WatchSymbols))
		for _, sym := range cfg.Trading.WatchSymbols {
			if ct, ok := client.Contract(sym); ok {
				watched = append(watched, ct)
			} else {
				logger.Warn("watch symbol has no contract", "symbol", sym)
			}
		}
		client.WarmQuotes(ctx, watched)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		client.Stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("run failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if metricsSrv != nil {
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}
