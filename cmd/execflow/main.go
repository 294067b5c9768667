package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"execflow/config"
	"execflow/engine"
	"execflow/examplestrategy"
	"execflow/logger"
	"execflow/metrics"
	"execflow/reader"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"symbol":      cfg.Engine.Symbol,
		"timeframe":   cfg.Engine.Timeframe,
		"environment": config.AppEnvironment(),
	}).Info("starting execflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	if cfg.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.CloudWatch.Region, cfg.CloudWatch.Namespace, cfg.CloudWatch.Dashboard)
	}

	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.ListenAddr)
	}

	fetcher := reader.NewFetcher(os.Getenv("EXCHANGE_API_KEY"), os.Getenv("EXCHANGE_API_SECRET"), cfg.Fetcher)
	ws := reader.NewWSManager(os.Getenv("EXCHANGE_WS_URL"))

	if err := ws.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start websocket manager")
		os.Exit(1)
	}

	// examplestrategy.New wires a no-op strategy so the binary runs end to
	// end out of the box. A real deployment supplies its own strategy.Strategy
	// implementation here instead.
	strat := examplestrategy.New()

	eng, err := engine.New(engine.Deps{
		Strategy: strat,
		Fetcher:  fetcher,
		WS:       ws,
		Config:   cfg.Engine,
	})
	if err != nil {
		log.WithError(err).Error("failed to construct engine")
		os.Exit(1)
	}

	if err := eng.Execute(ctx); err != nil {
		log.WithError(err).Error("failed to execute engine")
		os.Exit(1)
	}

	log.Info("engine is live")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()

	done := make(chan struct{})
	go func() {
		if err := eng.StopExecution(stopCtx); err != nil {
			log.WithError(err).Warn("engine reported an error during shutdown")
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	ws.Stop()
	log.Info("execflow stopped")
}
