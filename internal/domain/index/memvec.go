package index

import (
	"context"
	"sort"
	"sync"

	applog "regpulse/internal/platform/log"
)

// MemoryVectorIndex 内存向量索引：暴力余弦检索。
// 未配置远端向量服务时的进程内兜底，重启后数据丢失。
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	records map[string]VectorRecord
	dims    int
}

// NewMemoryVectorIndex 创建内存向量索引。
func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{
		records: make(map[string]VectorRecord),
	}
}

// EnsureIndex 记录维度，后续写入按此校验。
func (m *MemoryVectorIndex) EnsureIndex(_ context.Context, dims int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dims = dims
	applog.Info("[Index/Memory] In-memory vector index ready", "dims", dims)
	return nil
}

// Upsert 按 ID 覆盖写入。
func (m *MemoryVectorIndex) Upsert(_ context.Context, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

// Query 全量扫描计算余弦相似度（向量均已归一化，点积即余弦）。
func (m *MemoryVectorIndex) Query(_ context.Context, vector []float32, topK int) ([]QueryMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]QueryMatch, 0, len(m.records))
	for _, r := range m.records {
		matches = append(matches, QueryMatch{
			ID:       r.ID,
			Score:    dot(vector, r.Values),
			Metadata: r.Metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len 当前记录数。
func (m *MemoryVectorIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
