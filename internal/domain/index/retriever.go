package index

import (
	"context"
	"sort"
	"sync"

	applog "regpulse/internal/platform/log"
)

// RRF 排名融合常数，经验值
const rrfK = 60

// HybridRetrieverConfig 混合检索配置。
type HybridRetrieverConfig struct {
	TopK int // 最终返回的分块数
}

// HybridRetriever 混合检索器：词法 BM25 与向量 kNN 并行召回，
// RRF 融合排名。任一路失败时降级为单路结果。
type HybridRetriever struct {
	cfg      HybridRetrieverConfig
	embedder Embedder
	vector   VectorIndex
	lexical  *LexicalIndex
	cache    SearchCache // 可为 nil
}

// NewHybridRetriever 创建混合检索器。
func NewHybridRetriever(cfg HybridRetrieverConfig, embedder Embedder, vector VectorIndex, lexical *LexicalIndex, cache SearchCache) *HybridRetriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &HybridRetriever{
		cfg:      cfg,
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		cache:    cache,
	}
}

// Retrieve 对查询执行混合检索，返回融合后的前 TopK 个分块。
// 两路都失败或都为空时返回空切片（不报错，回答层自行兜底）。
func (h *HybridRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	if h.cache != nil {
		if docs, ok := h.cache.Get(ctx, query, h.cfg.TopK); ok {
			applog.Debug("[Retriever] Cache hit", "query", query)
			return docs, nil
		}
	}

	var (
		wg         sync.WaitGroup
		lexResults []Document
		vecResults []Document
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexResults = h.lexical.Search(query, h.cfg.TopK)
	}()
	go func() {
		defer wg.Done()
		vecResults = h.vectorSearch(ctx, query)
	}()
	wg.Wait()

	applog.Debug("[Retriever] Recall complete",
		"lexical", len(lexResults),
		"vector", len(vecResults),
	)

	fused := rrfMerge(lexResults, vecResults)
	if len(fused) > h.cfg.TopK {
		fused = fused[:h.cfg.TopK]
	}

	if h.cache != nil && len(fused) > 0 {
		h.cache.Set(ctx, query, h.cfg.TopK, fused)
	}
	return fused, nil
}

// vectorSearch 向量召回。嵌入或检索失败记录日志并返回空（降级）。
func (h *HybridRetriever) vectorSearch(ctx context.Context, query string) []Document {
	vectors, err := h.embedder.Embed(ctx, []string{query})
	if err != nil {
		applog.Error("[Retriever] Query embedding failed, vector recall skipped", "error", err)
		return nil
	}
	if len(vectors) == 0 {
		return nil
	}

	matches, err := h.vector.Query(ctx, vectors[0], h.cfg.TopK)
	if err != nil {
		applog.Error("[Retriever] Vector query failed, vector recall skipped", "error", err)
		return nil
	}

	docs := make([]Document, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, Document{
			ID:       m.ID,
			Text:     m.Metadata["text"],
			Metadata: m.Metadata,
			Score:    float64(m.Score),
		})
	}
	return docs
}

// rrfMerge Reciprocal Rank Fusion：每个分块得分为其在各召回列表中
// 1/(k+rank+1) 的和（rank 从 0 起）。同分时保持首次出现顺序（稳定排序）。
func rrfMerge(lists ...[]Document) []Document {
	scores := make(map[string]float64)
	byID := make(map[string]Document)
	var order []string

	for _, list := range lists {
		for rank, doc := range list {
			if _, seen := scores[doc.ID]; !seen {
				order = append(order, doc.ID)
				byID[doc.ID] = doc
			}
			scores[doc.ID] += 1.0 / float64(rrfK+rank+1)
		}
	}

	fused := make([]Document, 0, len(order))
	for _, id := range order {
		doc := byID[id]
		doc.Score = scores[id]
		fused = append(fused, doc)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}

// DedupSources 按 URL 去重提取来源列表，保留每个 URL 首次出现的条目。
func DedupSources(docs []Document) []Source {
	seen := make(map[string]bool)
	var sources []Source
	for _, doc := range docs {
		url := doc.Metadata["url"]
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		sources = append(sources, Source{
			Title:  doc.Metadata["title"],
			URL:    url,
			Source: doc.Metadata["source"],
		})
	}
	return sources
}
