package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"regpulse/internal/domain/answer"
	"regpulse/internal/domain/index"
	"regpulse/internal/domain/ingest"
	applog "regpulse/internal/platform/log"
	"regpulse/internal/stream"
)

// 相关旧文档召回数量
const relatedTopK = 3

// Archiver 摘要归档（可选，Postgres 实现）。
type Archiver interface {
	Insert(ctx context.Context, d Digest) error
}

// Pipeline 摘要流水线：消费 processed-documents 事件，
// 用新文档标题向量召回同主题旧文档做对比摘要，结果落盘。
type Pipeline struct {
	embedder  index.Embedder
	vector    index.VectorIndex
	generator *answer.Generator
	store     *Store
	archiver  Archiver // 可为 nil
}

// NewPipeline 创建摘要流水线。
func NewPipeline(embedder index.Embedder, vector index.VectorIndex, generator *answer.Generator, store *Store, archiver Archiver) *Pipeline {
	return &Pipeline{
		embedder:  embedder,
		vector:    vector,
		generator: generator,
		store:     store,
		archiver:  archiver,
	}
}

// HandleProcessedDocument stream.Handler：处理一条已入库文档事件。
// 事件缺全文或 URL 时记录告警并丢弃（返回 nil，不触发重投）。
func (p *Pipeline) HandleProcessedDocument(ctx context.Context, msg stream.Message) error {
	var event ingest.ProcessedDocumentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		applog.Warn("[Digest] Failed to decode processed document event", "error", err)
		return nil
	}
	if event.FullText == "" || event.Metadata.URL == "" {
		applog.Warn("[Digest] Received message without full text or URL, skipping")
		return nil
	}

	title := event.Metadata.Title
	if title == "" {
		title = "No Title"
	}
	applog.Info("[Digest] Processing document for summary", "title", title)

	// 用标题向量找同主题旧文档，排除文档自身
	oldTexts, related := p.findRelated(ctx, title, event.Metadata.URL)

	summary := p.generator.GenerateDigest(ctx, event.FullText, oldTexts)

	entry := Digest{
		Source:    event.Metadata.Source,
		Title:     title,
		URL:       event.Metadata.URL,
		Summary:   summary,
		Related:   related,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.Append(entry); err != nil {
		return fmt.Errorf("append digest: %w", err)
	}

	if p.archiver != nil {
		if err := p.archiver.Insert(ctx, entry); err != nil {
			applog.Warn("[Digest] Archive insert failed", "url", entry.URL, "error", err)
		}
	}

	applog.Info("[Digest] Summary saved", "title", title, "related", len(related))
	return nil
}

// findRelated 召回与标题相近的旧文档文本。
// 召回失败降级为独立摘要（返回空）。
func (p *Pipeline) findRelated(ctx context.Context, title, selfURL string) ([]string, []string) {
	vectors, err := p.embedder.Embed(ctx, []string{title})
	if err != nil || len(vectors) == 0 {
		applog.Warn("[Digest] Title embedding failed, falling back to standalone summary", "error", err)
		return nil, nil
	}

	matches, err := p.vector.Query(ctx, vectors[0], relatedTopK)
	if err != nil {
		applog.Warn("[Digest] Related document lookup failed", "error", err)
		return nil, nil
	}

	var texts []string
	var urls []string
	seen := make(map[string]bool)
	for _, m := range matches {
		url := m.Metadata["url"]
		if url == selfURL || m.Metadata["text"] == "" {
			continue
		}
		texts = append(texts, m.Metadata["text"])
		if url != "" && !seen[url] {
			seen[url] = true
			urls = append(urls, url)
		}
	}
	return texts, urls
}
