package bootstrap

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"regpulse/internal/db/vectorhttp"
	"regpulse/internal/domain/index"
	"regpulse/internal/platform/config"
	applog "regpulse/internal/platform/log"
)

// NewRedisClient 连接 Redis 并校验连通性。
func NewRedisClient(cfg *config.AppConfig) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	applog.Info("✅ Connected to Redis")
	return client, nil
}

// NewEmbedder 创建 OpenAI 兼容 Embedder。
func NewEmbedder(cfg *config.AppConfig) *index.OpenAIEmbedder {
	return index.NewOpenAIEmbedder(index.OpenAIEmbedderConfig{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dims:      cfg.Embedding.Dims,
		BatchSize: cfg.Embedding.BatchSize,
	})
}

// NewVectorIndex 按配置选择向量索引实现：配置了 VECTOR_SERVICE_URL
// 用远端服务，否则退化为进程内存索引（重启丢数据，仅适合开发）。
func NewVectorIndex(cfg *config.AppConfig) index.VectorIndex {
	if cfg.Vector.ServiceURL != "" {
		applog.Infof("✅ Using remote vector index (index: %s)", cfg.Vector.IndexName)
		return vectorhttp.New(vectorhttp.Config{
			BaseURL:   cfg.Vector.ServiceURL,
			APIKey:    cfg.Vector.APIKey,
			IndexName: cfg.Vector.IndexName,
			Metric:    cfg.Vector.Metric,
		})
	}

	applog.Warn("⚠️  No VECTOR_SERVICE_URL set, using in-memory vector index (data lost on restart)")
	return index.NewMemoryVectorIndex()
}
