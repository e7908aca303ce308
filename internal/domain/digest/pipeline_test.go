package digest

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"regpulse/internal/domain/answer"
	"regpulse/internal/domain/feed"
	"regpulse/internal/domain/index"
	"regpulse/internal/domain/ingest"
	"regpulse/internal/provider"
	"regpulse/internal/stream"
)

// stubLLM 回显 prompt 片段的 LLM 测试替身。
type stubLLM struct{}

func (stubLLM) Name() string { return "stub-digest" }

func (stubLLM) Complete(_ context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	content := "- summary point"
	if strings.Contains(req.Messages[0].Content, "OLDER RELATED DOCUMENTS") {
		content = "- comparative summary point"
	}
	return &provider.CompletionResponse{Content: content}, nil
}

type fixedEmbedder struct{ dims int }

func (f fixedEmbedder) Dims() int { return f.dims }

func (f fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		v := make([]float32, f.dims)
		for j := range v {
			v[j] = float32(sum[j%len(sum)]) / 255.0
		}
		out[i] = index.Normalize(v)
	}
	return out, nil
}

func processedMessage(t *testing.T, title, url, fullText string) stream.Message {
	t.Helper()
	data, err := json.Marshal(ingest.ProcessedDocumentEvent{
		Metadata: feed.ChangeEvent{Source: "rbi", Title: title, URL: url},
		FullText: fullText,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return stream.Message{Topic: "processed-documents", Key: "rbi", Value: data}
}

// TestPipelineStandaloneSummary 空索引时生成独立摘要并落盘
func TestPipelineStandaloneSummary(t *testing.T) {
	provider.RegisterProvider(stubLLM{})

	store := NewStore(filepath.Join(t.TempDir(), "latest_summaries.json"))
	generator := answer.NewGenerator(answer.GeneratorConfig{Provider: "stub-digest", Model: "test"})
	pipeline := NewPipeline(fixedEmbedder{dims: 16}, index.NewMemoryVectorIndex(), generator, store, nil)

	msg := processedMessage(t, "New Circular", "https://x/new", "Full text of the new circular.")
	if err := pipeline.HandleProcessedDocument(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	digests, err := store.ListRecent(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(digests) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(digests))
	}
	d := digests[0]
	if d.Title != "New Circular" || d.URL != "https://x/new" || d.Source != "rbi" {
		t.Errorf("unexpected digest metadata: %+v", d)
	}
	if d.Summary != "- summary point" {
		t.Errorf("expected standalone summary, got %q", d.Summary)
	}
	if len(d.Related) != 0 {
		t.Errorf("expected no related documents, got %v", d.Related)
	}

	t.Logf("✅ Standalone digest saved: %s", d.Title)
}

// TestPipelineComparativeSummary 索引中有旧文档时走对比摘要，排除自身 URL
func TestPipelineComparativeSummary(t *testing.T) {
	provider.RegisterProvider(stubLLM{})

	vector := index.NewMemoryVectorIndex()
	embedder := fixedEmbedder{dims: 16}

	// 预置一条旧文档向量与一条自身 URL 的向量
	oldVec, _ := embedder.Embed(context.Background(), []string{"Older Circular"})
	selfVec, _ := embedder.Embed(context.Background(), []string{"Self Chunk"})
	_ = vector.Upsert(context.Background(), []index.VectorRecord{
		{ID: "old_0", Values: oldVec[0], Metadata: map[string]string{
			"url": "https://x/old", "text": "old circular text",
		}},
		{ID: "self_0", Values: selfVec[0], Metadata: map[string]string{
			"url": "https://x/new", "text": "self text must be excluded",
		}},
	})

	store := NewStore(filepath.Join(t.TempDir(), "latest_summaries.json"))
	generator := answer.NewGenerator(answer.GeneratorConfig{Provider: "stub-digest", Model: "test"})
	pipeline := NewPipeline(embedder, vector, generator, store, nil)

	msg := processedMessage(t, "New Circular", "https://x/new", "Full text of the new circular.")
	if err := pipeline.HandleProcessedDocument(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	digests, _ := store.ListRecent(0)
	if len(digests) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(digests))
	}
	d := digests[0]
	if d.Summary != "- comparative summary point" {
		t.Errorf("expected comparative summary, got %q", d.Summary)
	}
	if len(d.Related) != 1 || d.Related[0] != "https://x/old" {
		t.Errorf("expected related=[https://x/old], got %v", d.Related)
	}
}

// TestPipelineSkipsIncompleteEvents 缺全文或 URL 的事件丢弃且不报错
func TestPipelineSkipsIncompleteEvents(t *testing.T) {
	provider.RegisterProvider(stubLLM{})

	store := NewStore(filepath.Join(t.TempDir(), "latest_summaries.json"))
	generator := answer.NewGenerator(answer.GeneratorConfig{Provider: "stub-digest", Model: "test"})
	pipeline := NewPipeline(fixedEmbedder{dims: 16}, index.NewMemoryVectorIndex(), generator, store, nil)

	cases := []stream.Message{
		processedMessage(t, "No URL", "", "some text"),
		processedMessage(t, "No Text", "https://x/no-text", ""),
		{Topic: "processed-documents", Value: []byte("not json")},
	}
	for i, msg := range cases {
		if err := pipeline.HandleProcessedDocument(context.Background(), msg); err != nil {
			t.Errorf("case %d: expected skip, got error: %v", i, err)
		}
	}

	digests, _ := store.ListRecent(0)
	if len(digests) != 0 {
		t.Errorf("expected no digests, got %d", len(digests))
	}
}
