package index

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"regpulse/internal/domain/ingest"
	applog "regpulse/internal/platform/log"
)

// BM25 参数，经验默认值
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

const lexicalSnapshotVersion = 1

// lexicalSnapshot 词法索引的磁盘快照。语料为权威数据，
// 统计量加载时在内存重建。
type lexicalSnapshot struct {
	Version   int                   `json:"version"`
	BuiltAt   time.Time             `json:"built_at"`
	Documents []ingest.DocumentChunk `json:"documents"`
	Stats     lexicalStats          `json:"stats"`
}

// lexicalStats 快照统计摘要，便于排障时肉眼检查。
type lexicalStats struct {
	DocCount  int     `json:"doc_count"`
	TermCount int     `json:"term_count"`
	AvgDocLen float64 `json:"avg_doc_len"`
}

// LexicalIndex BM25 词法索引。增量追加走全量重建 + 快照落盘，
// 检索时按快照 mtime 自动重载，跨进程共享同一份语料。
type LexicalIndex struct {
	path string

	mu        sync.RWMutex
	docs      []ingest.DocumentChunk
	docIDs    map[string]int // chunk ID -> docs 下标，追加去重用
	docLens   []int
	avgDocLen float64
	termFreqs []map[string]int // 每文档词频
	docFreq   map[string]int   // 词 -> 含词文档数
	loadedAt  time.Time        // 已加载快照的 mtime
}

// NewLexicalIndex 创建词法索引并尝试加载既有快照。
// 快照损坏时告警并从空索引开始（下一次追加会覆盖写出新快照）。
func NewLexicalIndex(path string) *LexicalIndex {
	idx := &LexicalIndex{
		path:    path,
		docIDs:  make(map[string]int),
		docFreq: make(map[string]int),
	}
	if err := idx.load(); err != nil {
		if !os.IsNotExist(err) {
			applog.Warn("[Index/Lexical] Failed to load snapshot, starting empty",
				"path", path,
				"error", err,
			)
		}
	}
	return idx
}

// Len 当前索引中的分块数。
func (l *LexicalIndex) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.docs)
}

// Append 追加一批分块并重建索引。同 ID 分块覆盖旧版本。
// 重建完成后原子写出快照。
func (l *LexicalIndex) Append(chunks []ingest.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// 先同步磁盘上其他进程写入的语料，避免覆盖丢失
	l.reloadLocked()

	for _, c := range chunks {
		if pos, ok := l.docIDs[c.ID]; ok {
			l.docs[pos] = c
			continue
		}
		l.docIDs[c.ID] = len(l.docs)
		l.docs = append(l.docs, c)
	}

	l.rebuildLocked()

	if err := l.saveLocked(); err != nil {
		return fmt.Errorf("save lexical snapshot: %w", err)
	}

	applog.Info("[Index/Lexical] Index rebuilt",
		"added", len(chunks),
		"total", len(l.docs),
	)
	return nil
}

// Search BM25 检索，返回按相关度降序的前 topK 条。
// 零命中返回空切片。
func (l *LexicalIndex) Search(query string, topK int) []Document {
	l.mu.Lock()
	l.reloadLocked()
	l.mu.Unlock()

	l.mu.RLock()
	defer l.mu.RUnlock()

	terms := tokenize(query)
	if len(terms) == 0 || len(l.docs) == 0 {
		return nil
	}

	n := float64(len(l.docs))
	scores := make([]float64, len(l.docs))
	for _, term := range terms {
		df := l.docFreq[term]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		for i := range l.docs {
			tf := float64(l.termFreqs[i][term])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(l.docLens[i])/l.avgDocLen
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}

	type scored struct {
		pos   int
		score float64
	}
	hits := make([]scored, 0, len(l.docs))
	for i, s := range scores {
		if s > 0 {
			hits = append(hits, scored{pos: i, score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]Document, 0, len(hits))
	for _, h := range hits {
		doc := l.docs[h.pos]
		results = append(results, Document{
			ID:       doc.ID,
			Text:     doc.Text,
			Metadata: chunkMetadataMap(doc.Metadata),
			Score:    h.score,
		})
	}
	return results
}

// rebuildLocked 从语料全量重建词频统计。调用方须持写锁。
func (l *LexicalIndex) rebuildLocked() {
	l.docLens = make([]int, len(l.docs))
	l.termFreqs = make([]map[string]int, len(l.docs))
	l.docFreq = make(map[string]int)

	var totalLen int
	for i, doc := range l.docs {
		terms := tokenize(doc.Text)
		freqs := make(map[string]int, len(terms))
		for _, t := range terms {
			freqs[t]++
		}
		l.termFreqs[i] = freqs
		l.docLens[i] = len(terms)
		totalLen += len(terms)
		for t := range freqs {
			l.docFreq[t]++
		}
	}

	if len(l.docs) > 0 {
		l.avgDocLen = float64(totalLen) / float64(len(l.docs))
	} else {
		l.avgDocLen = 0
	}
}

// saveLocked 原子写出快照：先写临时文件再 rename。调用方须持写锁。
func (l *LexicalIndex) saveLocked() error {
	snap := lexicalSnapshot{
		Version:   lexicalSnapshotVersion,
		BuiltAt:   time.Now().UTC(),
		Documents: l.docs,
		Stats: lexicalStats{
			DocCount:  len(l.docs),
			TermCount: len(l.docFreq),
			AvgDocLen: l.avgDocLen,
		},
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	if info, err := os.Stat(l.path); err == nil {
		l.loadedAt = info.ModTime()
	}
	return nil
}

// load 加载磁盘快照并重建统计。
func (l *LexicalIndex) load() error {
	info, err := os.Stat(l.path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}

	var snap lexicalSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Version != lexicalSnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.docs = snap.Documents
	l.docIDs = make(map[string]int, len(l.docs))
	for i, d := range l.docs {
		l.docIDs[d.ID] = i
	}
	l.rebuildLocked()
	l.loadedAt = info.ModTime()

	applog.Info("[Index/Lexical] Snapshot loaded",
		"path", l.path,
		"documents", len(l.docs),
		"built_at", snap.BuiltAt,
	)
	return nil
}

// reloadLocked 快照 mtime 变化时重新加载（其他进程可能已重建）。
// 调用方须持写锁。
func (l *LexicalIndex) reloadLocked() {
	info, err := os.Stat(l.path)
	if err != nil {
		return
	}
	if info.ModTime().Equal(l.loadedAt) {
		return
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		applog.Warn("[Index/Lexical] Failed to reload snapshot", "error", err)
		return
	}
	var snap lexicalSnapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Version != lexicalSnapshotVersion {
		applog.Warn("[Index/Lexical] Stale snapshot unreadable, keeping in-memory corpus", "error", err)
		return
	}

	l.docs = snap.Documents
	l.docIDs = make(map[string]int, len(l.docs))
	for i, d := range l.docs {
		l.docIDs[d.ID] = i
	}
	l.rebuildLocked()
	l.loadedAt = info.ModTime()
}

// tokenize 小写化后按非字母数字切词。
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// chunkMetadataMap 分块元数据转为检索结果通用的 map 形式。
func chunkMetadataMap(m ingest.ChunkMetadata) map[string]string {
	out := map[string]string{
		"source": m.Source,
		"title":  m.Title,
		"url":    m.URL,
		"text":   m.Text,
	}
	if m.Published != "" {
		out["published"] = m.Published
	}
	if m.Timestamp != "" {
		out["timestamp"] = m.Timestamp
	}
	return out
}
