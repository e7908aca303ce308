package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"regpulse/internal/app/bootstrap"
	"regpulse/internal/db/postgres"
	"regpulse/internal/db/redisbus"
	"regpulse/internal/domain/answer"
	"regpulse/internal/domain/digest"
	"regpulse/internal/platform/config"
	applog "regpulse/internal/platform/log"
)

// 摘要服务使用独立消费组，与入库服务互不抢占消息
const summarizerGroup = "regpulse-summarizer"

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

	if err := cfg.RequireLLM(); err != nil {
		applog.Fatalf("❌ %v", err)
	}

	redisClient, err := bootstrap.NewRedisClient(cfg)
	if err != nil {
		applog.Fatalf("❌ Redis connection failed: %v", err)
	}
	defer redisClient.Close()

	bootstrap.RegisterLLMProviders(cfg.LLM.APIKey, cfg.LLM.BaseURL)

	embedder := bootstrap.NewEmbedder(cfg)
	vectorIndex := bootstrap.NewVectorIndex(cfg)

	generator := answer.NewGenerator(answer.GeneratorConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
	})
	store := digest.NewStore(cfg.Artifacts.SummariesPath())

	archiver := initArchiver(cfg)

	pipeline := digest.NewPipeline(embedder, vectorIndex, generator, store, archiver)

	bus := redisbus.New(redisClient)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applog.Infof("🚀 Summarizer starting (topic: %s, group: %s)", cfg.Stream.ProcessedTopic, summarizerGroup)
	if err := bus.Run(ctx, cfg.Stream.ProcessedTopic, summarizerGroup, pipeline.HandleProcessedDocument); err != nil {
		applog.Fatalf("❌ Consumer error: %v", err)
	}

	applog.Info("👋 Summarizer stopped")
}

// initArchiver 配置了 DATABASE_URL 时启用 Postgres 摘要归档。
func initArchiver(cfg *config.AppConfig) digest.Archiver {
	if cfg.Database.URL == "" {
		applog.Info("ℹ️  No DATABASE_URL set, digest archive disabled")
		return nil
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Warnf("⚠️  Failed to open archive database: %v (archive disabled)", err)
		return nil
	}
	if err := db.Ping(); err != nil {
		applog.Warnf("⚠️  Archive database unreachable: %v (archive disabled)", err)
		return nil
	}
	applog.Info("✅ Connected to PostgreSQL for digest archive")

	store := postgres.NewDigestStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureTable(ctx); err != nil {
		applog.Warnf("⚠️  Failed to ensure digests table: %v", err)
	}
	return store
}
