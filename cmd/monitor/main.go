package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regpulse/internal/app/bootstrap"
	"regpulse/internal/db/redisbus"
	"regpulse/internal/db/seenstore"
	"regpulse/internal/domain/feed"
	"regpulse/internal/platform/config"
	applog "regpulse/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	redisClient, err := bootstrap.NewRedisClient(cfg)
	if err != nil {
		applog.Fatalf("❌ Redis connection failed: %v", err)
	}
	defer redisClient.Close()

	seen, err := seenstore.Open(cfg.Artifacts.FingerprintDBPath())
	if err != nil {
		applog.Fatalf("❌ Failed to open fingerprint store: %v", err)
	}
	defer seen.Close()

	bus := redisbus.New(redisClient)
	monitor := feed.NewMonitor(feed.MonitorConfig{
		Sources:       cfg.Monitor.Sources,
		CheckInterval: time.Duration(cfg.Monitor.CheckIntervalSeconds) * time.Second,
		FetchTimeout:  time.Duration(cfg.Monitor.FetchTimeoutSeconds) * time.Second,
		RawTopic:      cfg.Stream.RawTopic,
	}, seen, bus)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applog.Infof("🚀 Feed monitor starting (sources: %d, seen: %d)", len(cfg.Monitor.Sources), seen.Len())
	if err := monitor.Run(ctx); err != nil {
		applog.Fatalf("❌ Monitor error: %v", err)
	}

	applog.Info("👋 Monitor stopped")
}
