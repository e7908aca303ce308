package index

import (
	"context"
)

// ── 向量索引接口与检索结果类型 ────────────────────────────────

// VectorRecord 向量索引中的一条记录。ID 为分块 ID，upsert 按 ID 幂等覆盖。
type VectorRecord struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryMatch 向量检索命中。Score 为余弦相似度。
type QueryMatch struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// VectorIndex 向量索引接口。远端服务与内存实现共用。
type VectorIndex interface {
	// EnsureIndex 确保索引存在（不存在时按维度创建）
	EnsureIndex(ctx context.Context, dims int) error
	// Upsert 按 ID 幂等写入一批向量
	Upsert(ctx context.Context, records []VectorRecord) error
	// Query 返回与查询向量最相近的 topK 条记录，按相似度降序
	Query(ctx context.Context, vector []float32, topK int) ([]QueryMatch, error)
}

// Document 检索返回的文档分块。
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Source 答案引用的来源文档（按 URL 去重后）。
type Source struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}
