package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"regpulse/internal/api"
	"regpulse/internal/app/bootstrap"
	redisdb "regpulse/internal/db/redis"
	"regpulse/internal/domain/answer"
	"regpulse/internal/domain/digest"
	"regpulse/internal/domain/index"
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

	if err := cfg.RequireLLM(); err != nil {
		applog.Fatalf("❌ %v", err)
	}
	if err := cfg.RequireJWT(); err != nil {
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
	lexical := index.NewLexicalIndex(cfg.Artifacts.LexicalSnapshotPath())

	var cache index.SearchCache
	if cfg.Retrieval.CacheTTLSeconds > 0 {
		cache = redisdb.NewSearchCache(redisClient, cfg.Retrieval.CacheTTLSeconds)
		applog.Infof("✅ Search cache initialized (TTL: %ds)", cfg.Retrieval.CacheTTLSeconds)
	}

	retriever := index.NewHybridRetriever(
		index.HybridRetrieverConfig{TopK: cfg.Retrieval.TopK},
		embedder,
		vectorIndex,
		lexical,
		cache,
	)

	generator := answer.NewGenerator(answer.GeneratorConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.JWTSecret = cfg.Server.JWTSecret
	serverConfig.JWTIssuer = cfg.Server.JWTIssuer

	queryHandler := api.NewQueryHandler(retriever, generator, serverConfig.QueryTimeout)
	digestHandler := api.NewDigestHandler(digest.NewStore(cfg.Artifacts.SummariesPath()))
	server := api.NewServer(serverConfig, queryHandler, digestHandler)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Query server stopped")
}
