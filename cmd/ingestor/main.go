package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regpulse/internal/app/bootstrap"
	"regpulse/internal/app/ingestion"
	redisdb "regpulse/internal/db/redis"
	"regpulse/internal/db/redisbus"
	"regpulse/internal/domain/index"
	"regpulse/internal/domain/ingest"
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

	embedder := bootstrap.NewEmbedder(cfg)
	vectorIndex := bootstrap.NewVectorIndex(cfg)

	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := vectorIndex.EnsureIndex(ensureCtx, embedder.Dims()); err != nil {
		applog.Warnf("⚠️  Failed to ensure vector index: %v", err)
	}
	ensureCancel()

	lexical := index.NewLexicalIndex(cfg.Artifacts.LexicalSnapshotPath())

	updater := index.NewDualUpdater(
		index.DualUpdaterConfig{UpsertBatchSize: cfg.Vector.UpsertBatchSize},
		embedder,
		vectorIndex,
		lexical,
		redisdb.NewRebuildLock(redisClient, "lexical"),
		redisdb.NewSearchCache(redisClient, cfg.Retrieval.CacheTTLSeconds),
	)

	processor := ingest.NewProcessor(ingest.ProcessorConfig{
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		FetchTimeout: time.Duration(cfg.Ingest.FetchTimeoutSeconds) * time.Second,
		UserAgent:    cfg.Ingest.UserAgent,
	})

	bus := redisbus.New(redisClient)
	pipeline := ingestion.NewPipeline(processor, updater, bus, cfg.Stream.ProcessedTopic)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applog.Infof("🚀 Ingestion service starting (topic: %s, group: %s)", cfg.Stream.RawTopic, cfg.Stream.GroupID)
	if err := bus.Run(ctx, cfg.Stream.RawTopic, cfg.Stream.GroupID, pipeline.HandleRawUpdate); err != nil {
		applog.Fatalf("❌ Consumer error: %v", err)
	}

	applog.Info("👋 Ingestion service stopped")
}
