package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/careoclock/server/internal/alerts"
	"github.com/careoclock/server/internal/api"
	"github.com/careoclock/server/internal/config"
	"github.com/careoclock/server/internal/cron"
	"github.com/careoclock/server/internal/store"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	sweepOnce  = flag.Bool("sweep", false, "Run one alert sweep and exit")
	version    = "dev"
)

func main() {
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting CareOClock", zap.String("version", version))

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	server := api.New(cfg, st, logger)

	if *sweepOnce {
		results, err := server.Sweeper().Run(context.Background())
		if err != nil {
			logger.Fatal("Sweep failed", zap.Error(err))
		}
		logger.Info("Sweep complete", zap.Int("alerts_generated", len(results)))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := alerts.NewDispatcher(st, server.Engine(), logger, cfg.Alerts.DispatchWorkers)
	dispatcher.Start(ctx)

	runner := cron.NewRunner(server.Sweeper(), logger, cfg.Alerts.SweepSchedule)
	if err := runner.Start(ctx); err != nil {
		logger.Fatal("Failed to start sweep scheduler", zap.Error(err))
	}

	// Hot-reload the sweep schedule when an explicit config file changes.
	if *configPath != "" {
		_, err := config.Watch(*configPath, func(updated *config.Config) {
			if err := runner.Reschedule(ctx, updated.Alerts.SweepSchedule); err != nil {
				logger.Warn("Ignoring invalid sweep schedule from config reload",
					zap.String("schedule", updated.Alerts.SweepSchedule), zap.Error(err))
				return
			}
			logger.Info("Sweep schedule reloaded",
				zap.String("schedule", updated.Alerts.SweepSchedule))
		})
		if err != nil {
			logger.Warn("Config watching disabled", zap.Error(err))
		}
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	runner.Stop()
	dispatcher.Stop()
	if err := server.Shutdown(); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}
