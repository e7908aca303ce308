package redisdb

import (
	applog "regpulse/internal/platform/log"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"regpulse/internal/domain/index"

	"github.com/redis/go-redis/v9"
)

// SearchCache 检索结果 Redis 缓存
type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSearchCache 创建检索缓存
func NewSearchCache(rdb *redis.Client, ttlSeconds int) *SearchCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &SearchCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "retrieval:cache:",
	}
}

// Get 从缓存获取检索结果
func (c *SearchCache) Get(ctx context.Context, query string, topK int) ([]index.Document, bool) {
	key := c.cacheKey(query, topK)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var docs []index.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		applog.Warn("[Retrieval/Cache] Failed to unmarshal cached result", "error", err)
		return nil, false
	}

	applog.Debug("[Retrieval/Cache] Hit", "key", key)
	return docs, true
}

// Set 写入检索结果到缓存
func (c *SearchCache) Set(ctx context.Context, query string, topK int, docs []index.Document) {
	key := c.cacheKey(query, topK)
	data, err := json.Marshal(docs)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[Retrieval/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 清除所有检索缓存（索引更新后调用）
func (c *SearchCache) InvalidateAll(ctx context.Context) error {
	pattern := c.prefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache keys: %w", err)
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("delete cache keys: %w", err)
		}
		applog.Info("[Retrieval/Cache] All cache invalidated", "keys_deleted", len(keys))
	}
	return nil
}

// cacheKey 生成缓存 key = hash(query + topK)
func (c *SearchCache) cacheKey(query string, topK int) string {
	raw := fmt.Sprintf("%s|%d", query, topK)
	hash := sha256.Sum256([]byte(raw))
	return c.prefix + fmt.Sprintf("%x", hash[:12])
}
