package index

import (
	"context"
	"fmt"
	"time"

	"regpulse/internal/domain/ingest"
	applog "regpulse/internal/platform/log"
)

// IndexLock 词法索引重建的跨进程互斥锁（advisory）。
type IndexLock interface {
	// Acquire 尝试获取锁，已被占用返回 false
	Acquire(ctx context.Context) (bool, error)
	// Release 释放锁
	Release(ctx context.Context) error
}

// SearchCache 检索结果缓存，索引更新后整体失效。
type SearchCache interface {
	Get(ctx context.Context, query string, topK int) ([]Document, bool)
	Set(ctx context.Context, query string, topK int, docs []Document)
	// InvalidateAll 清空全部缓存条目
	InvalidateAll(ctx context.Context) error
}

// DualUpdaterConfig 双索引写入配置。
type DualUpdaterConfig struct {
	UpsertBatchSize int // 向量批量写入大小
}

// DualUpdater 双索引写入器：同一批分块同时进向量索引与词法索引。
// 两条路径独立降级：向量失败不阻塞词法，反之亦然。
type DualUpdater struct {
	cfg      DualUpdaterConfig
	embedder Embedder
	vector   VectorIndex
	lexical  *LexicalIndex
	lock     IndexLock   // 可为 nil（单进程部署）
	cache    SearchCache // 可为 nil
}

// NewDualUpdater 创建双索引写入器。
func NewDualUpdater(cfg DualUpdaterConfig, embedder Embedder, vector VectorIndex, lexical *LexicalIndex, lock IndexLock, cache SearchCache) *DualUpdater {
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 100
	}
	return &DualUpdater{
		cfg:      cfg,
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		lock:     lock,
		cache:    cache,
	}
}

// IndexChunks 将分块写入两个索引。分块 ID 确定性生成，
// 重复调用幂等（向量覆盖、词法去重）。
// 返回错误仅代表两条路径全部失败；部分失败记录日志后继续。
func (u *DualUpdater) IndexChunks(ctx context.Context, chunks []ingest.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	vecErr := u.updateVector(ctx, chunks)
	lexErr := u.updateLexical(ctx, chunks)

	if u.cache != nil {
		if err := u.cache.InvalidateAll(ctx); err != nil {
			applog.Warn("[Index/Updater] Cache invalidation failed", "error", err)
		}
	}

	if vecErr != nil && lexErr != nil {
		return fmt.Errorf("both indexes failed: vector: %v; lexical: %w", vecErr, lexErr)
	}
	return nil
}

// updateVector 嵌入并分批 upsert。单批失败记录日志后继续下一批。
func (u *DualUpdater) updateVector(ctx context.Context, chunks []ingest.DocumentChunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := u.embedder.Embed(ctx, texts)
	if err != nil {
		applog.Error("[Index/Updater] Embedding failed, vector index skipped", "error", err)
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		applog.Error("[Index/Updater] Embedding count mismatch",
			"chunks", len(chunks),
			"vectors", len(vectors),
		)
		return fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	records := make([]VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = VectorRecord{
			ID:       c.ID,
			Values:   vectors[i],
			Metadata: chunkMetadataMap(c.Metadata),
		}
	}

	var failed int
	for i := 0; i < len(records); i += u.cfg.UpsertBatchSize {
		end := i + u.cfg.UpsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := u.vector.Upsert(ctx, records[i:end]); err != nil {
			failed += end - i
			applog.Error("[Index/Updater] Vector batch upsert failed",
				"batch_start", i,
				"batch_size", end-i,
				"error", err,
			)
			continue
		}
	}

	applog.Info("[Index/Updater] Vector index updated",
		"upserted", len(records)-failed,
		"failed", failed,
	)
	if failed == len(records) {
		return fmt.Errorf("all vector batches failed")
	}
	return nil
}

// updateLexical 持锁重建词法索引。拿不到锁时退避重试，
// 超时后放弃本轮持锁、直接追加（锁是 advisory，冲突最坏浪费一次重建）。
func (u *DualUpdater) updateLexical(ctx context.Context, chunks []ingest.DocumentChunk) error {
	if u.lock != nil {
		acquired := false
		for attempt := 0; attempt < 10; attempt++ {
			ok, err := u.lock.Acquire(ctx)
			if err != nil {
				applog.Warn("[Index/Updater] Lock acquire failed", "error", err)
				break
			}
			if ok {
				acquired = true
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
		if acquired {
			defer func() {
				if err := u.lock.Release(ctx); err != nil {
					applog.Warn("[Index/Updater] Lock release failed", "error", err)
				}
			}()
		} else {
			applog.Warn("[Index/Updater] Proceeding without rebuild lock")
		}
	}

	if err := u.lexical.Append(chunks); err != nil {
		applog.Error("[Index/Updater] Lexical index update failed", "error", err)
		return err
	}
	return nil
}
