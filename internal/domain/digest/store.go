// Package digest 新文档摘要：向量索引召回同主题旧文档做对比摘要，
// 结果追加到本地摘要日志，可选归档到 PostgreSQL。
package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "regpulse/internal/platform/log"
)

// Digest 一条文档摘要。
type Digest struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Summary   string    `json:"summary"`
	Related   []string  `json:"related,omitempty"` // 参与对比的旧文档 URL
	CreatedAt time.Time `json:"created_at"`
}

// Store 摘要日志的 JSON 文件存储。整个文件一次性重写（原子 rename），
// 条目量级为每日数十条，全量重写开销可忽略。
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore 创建摘要存储。
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Append 追加一条摘要。
func (s *Store) Append(d Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	digests, err := s.loadLocked()
	if err != nil {
		applog.Warn("[Digest/Store] Failed to load existing log, starting fresh", "error", err)
		digests = nil
	}
	digests = append(digests, d)

	return s.saveLocked(digests)
}

// ListRecent 返回最近 limit 条摘要，新者在前。limit <= 0 返回全部。
func (s *Store) ListRecent(limit int) ([]Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	digests, err := s.loadLocked()
	if err != nil {
		return nil, err
	}

	// 倒序：文件内按时间追加，新者在尾
	out := make([]Digest, 0, len(digests))
	for i := len(digests) - 1; i >= 0; i-- {
		out = append(out, digests[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) loadLocked() ([]Digest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read digest log: %w", err)
	}

	var digests []Digest
	if err := json.Unmarshal(data, &digests); err != nil {
		return nil, fmt.Errorf("parse digest log: %w", err)
	}
	return digests, nil
}

func (s *Store) saveLocked(digests []Digest) error {
	data, err := json.MarshalIndent(digests, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal digest log: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create digest dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write digest log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename digest log: %w", err)
	}
	return nil
}
