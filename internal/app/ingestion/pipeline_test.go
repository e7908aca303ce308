package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"regpulse/internal/db/seenstore"
	"regpulse/internal/domain/feed"
	"regpulse/internal/domain/index"
	"regpulse/internal/domain/ingest"
	"regpulse/internal/stream"
)

type hashEmbedder struct{}

func (hashEmbedder) Dims() int { return 16 }

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		v := make([]float32, 16)
		for j := range v {
			v[j] = float32(sum[j]) / 255.0
		}
		out[i] = index.Normalize(v)
	}
	return out, nil
}

// TestPipelineEndToEnd feed 轮询 → 事件 → 抓取分块 → 双索引 → 下游事件
func TestPipelineEndToEnd(t *testing.T) {
	// 文档站点：两篇 HTML 公告
	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/lending":
			fmt.Fprint(w, "<h1>Lending Circular</h1><p>"+
				strings.Repeat("Digital lending apps must register with the regulator. ", 30)+"</p>")
		case "/payments":
			fmt.Fprint(w, "<h1>Payments Circular</h1><p>"+
				strings.Repeat("Payment aggregators require authorisation for settlement. ", 30)+"</p>")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer docs.Close()

	// feed：三条条目，其中两条指向同一 URL（标题相同 = 重复）
	feedXML := fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel>
	<item><title>Lending Circular</title><link>%s/lending</link></item>
	<item><title>Payments Circular</title><link>%s/payments</link></item>
	<item><title>Lending Circular</title><link>%s/lending</link></item>
</channel></rss>`, docs.URL, docs.URL, docs.URL)

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedXML)
	}))
	defer feedSrv.Close()

	bus := stream.NewMemoryBus()

	// 入库端组件
	embedder := hashEmbedder{}
	vector := index.NewMemoryVectorIndex()
	lexical := index.NewLexicalIndex(filepath.Join(t.TempDir(), "snapshot.json"))
	updater := index.NewDualUpdater(index.DualUpdaterConfig{}, embedder, vector, lexical, nil, nil)
	processor := ingest.NewProcessor(ingest.ProcessorConfig{
		ChunkSize:    400,
		ChunkOverlap: 80,
		FetchTimeout: 5 * time.Second,
	})
	pipeline := NewPipeline(processor, updater, bus, "processed-documents")
	bus.Subscribe("raw-updates", pipeline.HandleRawUpdate)

	// 下游摘要端：记录 processed-documents 事件
	var processed []ingest.ProcessedDocumentEvent
	bus.Subscribe("processed-documents", func(_ context.Context, msg stream.Message) error {
		var event ingest.ProcessedDocumentEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		processed = append(processed, event)
		return nil
	})

	// 采集端
	seen, err := seenstore.Open(filepath.Join(t.TempDir(), "fingerprints.db"))
	if err != nil {
		t.Fatalf("open seen store: %v", err)
	}
	defer seen.Close()

	monitor := feed.NewMonitor(feed.MonitorConfig{
		Sources:  map[string]string{"rbi": feedSrv.URL},
		RawTopic: "raw-updates",
	}, seen, bus)

	monitor.CheckOnce(context.Background())

	// 重复条目去重后只有两篇文档入库
	if len(processed) != 2 {
		t.Fatalf("expected 2 processed documents, got %d", len(processed))
	}
	urls := map[string]bool{}
	for _, e := range processed {
		urls[e.Metadata.URL] = true
		if e.FullText == "" {
			t.Errorf("expected full text for %s", e.Metadata.URL)
		}
	}
	if !urls[docs.URL+"/lending"] || !urls[docs.URL+"/payments"] {
		t.Errorf("unexpected processed URLs: %v", urls)
	}

	if lexical.Len() == 0 {
		t.Fatal("expected lexical index to contain chunks")
	}
	if vector.Len() != lexical.Len() {
		t.Errorf("expected both indexes in sync: vector=%d lexical=%d", vector.Len(), lexical.Len())
	}

	// 入库后混合检索能找回文档
	retriever := index.NewHybridRetriever(index.HybridRetrieverConfig{TopK: 3}, embedder, vector, lexical, nil)
	results, err := retriever.Retrieve(context.Background(), "digital lending apps register")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected retrieval hits after ingestion")
	}
	if results[0].Metadata["url"] != docs.URL+"/lending" {
		t.Errorf("expected lending circular first, got %v", results[0].Metadata["url"])
	}

	// 第二轮轮询：全部已见，无新事件
	before := len(processed)
	monitor.CheckOnce(context.Background())
	if len(processed) != before {
		t.Errorf("expected no reprocessing on second cycle, got %d new", len(processed)-before)
	}

	t.Logf("✅ End-to-end: %d documents, %d chunks indexed, top hit %s",
		len(processed), lexical.Len(), results[0].ID)
}

// TestHandleRawUpdateBadPayload 非法消息丢弃且不报错
func TestHandleRawUpdateBadPayload(t *testing.T) {
	bus := stream.NewMemoryBus()
	processor := ingest.NewProcessor(ingest.ProcessorConfig{ChunkSize: 400, ChunkOverlap: 80})
	updater := index.NewDualUpdater(index.DualUpdaterConfig{}, hashEmbedder{},
		index.NewMemoryVectorIndex(), index.NewLexicalIndex(filepath.Join(t.TempDir(), "snapshot.json")), nil, nil)
	pipeline := NewPipeline(processor, updater, bus, "processed-documents")

	msgs := []stream.Message{
		{Topic: "raw-updates", Value: []byte("not json")},
		{Topic: "raw-updates", Value: []byte(`{"source":"rbi","title":"no url"}`)},
	}
	for i, msg := range msgs {
		if err := pipeline.HandleRawUpdate(context.Background(), msg); err != nil {
			t.Errorf("message %d: expected skip, got error: %v", i, err)
		}
	}
}
