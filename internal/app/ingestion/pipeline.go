// Package ingestion 实时入库流水线：raw-updates 事件 → 抓取分块 →
// 双索引写入 → processed-documents 事件。
package ingestion

import (
	"context"
	"encoding/json"

	"regpulse/internal/domain/feed"
	"regpulse/internal/domain/index"
	"regpulse/internal/domain/ingest"
	applog "regpulse/internal/platform/log"
	"regpulse/internal/stream"
)

// Pipeline 入库流水线。
type Pipeline struct {
	processor      *ingest.Processor
	updater        *index.DualUpdater
	publisher      feed.Publisher
	processedTopic string
}

// NewPipeline 创建入库流水线。
func NewPipeline(processor *ingest.Processor, updater *index.DualUpdater, publisher feed.Publisher, processedTopic string) *Pipeline {
	return &Pipeline{
		processor:      processor,
		updater:        updater,
		publisher:      publisher,
		processedTopic: processedTopic,
	}
}

// HandleRawUpdate stream.Handler：处理一条变更事件。
// 抓取失败或空文档时事件等效丢弃（返回 nil）；
// 索引部分失败不阻断下游事件发布（分块 ID 幂等，重投可补齐）。
func (p *Pipeline) HandleRawUpdate(ctx context.Context, msg stream.Message) error {
	var event feed.ChangeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		applog.Warn("[Ingestion] Failed to decode change event, skipping", "error", err)
		return nil
	}

	chunks, fullText := p.processor.Process(ctx, event)
	if len(chunks) == 0 {
		return nil
	}

	if err := p.updater.IndexChunks(ctx, chunks); err != nil {
		applog.Error("[Ingestion] Index update failed", "url", event.URL, "error", err)
	}

	processed := ingest.ProcessedDocumentEvent{
		Metadata: event,
		FullText: fullText,
	}
	if err := p.publisher.Publish(ctx, p.processedTopic, event.Source, processed); err != nil {
		applog.Error("[Ingestion] Failed to publish processed document",
			"url", event.URL,
			"error", err,
		)
		return nil
	}

	applog.Info("[Ingestion] Document indexed and published",
		"url", event.URL,
		"chunks", len(chunks),
	)
	return nil
}
