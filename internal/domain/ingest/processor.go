package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"regpulse/internal/domain/feed"
	applog "regpulse/internal/platform/log"
)

// DocumentChunk 文档分块，向量索引与词法索引共享的原子单元。
// ID 由源 URL 哈希 + 序号确定性生成：同一 URL 重复处理产出相同 ID，
// 下游 upsert 天然幂等（覆盖而非重复）。
type DocumentChunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata 分块元数据：变更事件全部字段 + 块文本。
type ChunkMetadata struct {
	Source    string `json:"source"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Published string `json:"published,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Text      string `json:"text"`
}

// ProcessedDocumentEvent 已入库文档事件，写入 processed-documents 主题、
// 触发下游摘要。
type ProcessedDocumentEvent struct {
	Metadata feed.ChangeEvent `json:"metadata"`
	FullText string           `json:"full_text"`
}

// ProcessorConfig 抓取与分块参数。
type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	FetchTimeout time.Duration
	UserAgent    string
}

// Processor 文档抓取与分块处理器：解析变更事件指向的 URL，
// 抽取正文并切块。
type Processor struct {
	cfg     ProcessorConfig
	chunker *Chunker
	client  *http.Client
}

// NewProcessor 创建处理器。
func NewProcessor(cfg ProcessorConfig) *Processor {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Processor{
		cfg:     cfg,
		chunker: NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		client:  &http.Client{Timeout: timeout},
	}
}

// Process 处理一条变更事件，返回分块与全文。
// 抓取失败返回空结果（记录日志，事件等效丢弃，本层不重试）。
func (p *Processor) Process(ctx context.Context, event feed.ChangeEvent) ([]DocumentChunk, string) {
	if event.URL == "" {
		applog.Warn("[Ingest] Received update with no URL, skipping")
		return nil, ""
	}

	applog.Info("[Ingest] Processing update", "url", event.URL)

	body, contentType, err := p.fetch(ctx, event.URL)
	if err != nil {
		applog.Error("[Ingest] Failed to fetch document", "url", event.URL, "error", err)
		return nil, ""
	}

	text, err := ExtractText(contentType, event.URL, body)
	if err != nil {
		applog.Error("[Ingest] Failed to extract text", "url", event.URL, "error", err)
		return nil, ""
	}
	if text == "" {
		applog.Warn("[Ingest] Document produced no text", "url", event.URL)
		return nil, ""
	}

	spans := p.chunker.Split(text)
	docID := DocID(event.URL)

	chunks := make([]DocumentChunk, 0, len(spans))
	for i, span := range spans {
		chunks = append(chunks, DocumentChunk{
			ID:   fmt.Sprintf("%s_%d", docID, i),
			Text: span,
			Metadata: ChunkMetadata{
				Source:    event.Source,
				Title:     event.Title,
				URL:       event.URL,
				Published: event.Published,
				Timestamp: event.Timestamp,
				Text:      span,
			},
		})
	}

	applog.Info("[Ingest] Document chunked", "url", event.URL, "chunks", len(chunks))
	return chunks, text
}

// DocID URL 的确定性文档标识。
func DocID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:12])
}

func (p *Processor) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}
