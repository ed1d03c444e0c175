package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oispurts/internal/config"
	"oispurts/internal/fetch"
	"oispurts/internal/logger"
	"oispurts/internal/process"
	"oispurts/internal/retry"
	"oispurts/internal/scheduler"
	"oispurts/internal/store"
	"oispurts/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	st, err := store.New(cfg.Storage.DBPath, cfg.Storage.RawDir, cfg.Storage.MaxRawPerDay)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	tracker := process.NewTracker(st)
	if err := tracker.Restore(); err != nil {
		logger.Fatal("Failed to restore today's series: %v", err)
	}
	if n := tracker.Series().Len(); n > 0 {
		logger.Info("Restored %d snapshots for today from storage", n)
	}

	fetcher := fetch.New(fetch.Config{
		PageURL:   cfg.Source.PageURL,
		DataURL:   cfg.Source.DataURL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.Timeout,
		Retry: retry.Policy{
			MaxAttempts: cfg.Source.MaxRetries,
			BaseDelay:   cfg.Source.RetryDelayBase,
			MaxDelay:    cfg.Source.RetryDelayMax,
			Jitter:      0.2,
		},
	})

	window, err := scheduler.ParseWindow(cfg.Schedule.WindowStart, cfg.Schedule.WindowEnd, cfg.Schedule.Timezone)
	if err != nil {
		logger.Fatal("Failed to parse trading window: %v", err)
	}

	sched := scheduler.New(fetcher, tracker, window, cfg.Schedule.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			tracker,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		telegramClient.ListenForCommands(ctx)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram bot disabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Starting tracker (window: %s, interval: %v)", window, cfg.Schedule.Interval)
	sched.Start(ctx)

	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warn("Scheduler did not stop cleanly: %v", err)
	}
	logger.Info("Service stopped")
}
