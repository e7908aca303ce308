package redisdb

import (
	applog "regpulse/internal/platform/log"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RebuildLock 基于 Redis SETNX 的索引重建分布式锁。
// TTL 兜底：持锁进程崩溃后锁自动过期。
type RebuildLock struct {
	client *redis.Client
	name   string
	ttl    time.Duration
}

// NewRebuildLock 创建重建锁。name 区分不同索引。
func NewRebuildLock(client *redis.Client, name string) *RebuildLock {
	return &RebuildLock{
		client: client,
		name:   name,
		ttl:    60 * time.Second,
	}
}

// Acquire 获取重建锁
func (l *RebuildLock) Acquire(ctx context.Context) (bool, error) {
	key := fmt.Sprintf("lexical:lock:%s", l.name)
	acquired, err := l.client.SetNX(ctx, key, "locked", l.ttl).Result()
	if err != nil {
		applog.Warn("[RebuildLock] Failed to acquire lock",
			"name", l.name,
			"error", err,
		)
		return false, err
	}

	if acquired {
		applog.Debug("[RebuildLock] Lock acquired", "name", l.name)
	} else {
		applog.Debug("[RebuildLock] Lock already held", "name", l.name)
	}

	return acquired, nil
}

// Release 释放重建锁
func (l *RebuildLock) Release(ctx context.Context) error {
	key := fmt.Sprintf("lexical:lock:%s", l.name)
	err := l.client.Del(ctx, key).Err()
	if err != nil {
		applog.Warn("[RebuildLock] Failed to release lock",
			"name", l.name,
			"error", err,
		)
		return err
	}

	applog.Debug("[RebuildLock] Lock released", "name", l.name)
	return nil
}
