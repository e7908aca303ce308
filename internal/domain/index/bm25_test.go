package index

import (
	"path/filepath"
	"testing"

	"regpulse/internal/domain/ingest"
)

func lexChunk(id, text, url string) ingest.DocumentChunk {
	return ingest.DocumentChunk{
		ID:   id,
		Text: text,
		Metadata: ingest.ChunkMetadata{
			Source: "rbi",
			Title:  "Doc " + id,
			URL:    url,
			Text:   text,
		},
	}
}

// TestLexicalSearchRelevance 含查询词的文档排在前面
func TestLexicalSearchRelevance(t *testing.T) {
	idx := NewLexicalIndex(filepath.Join(t.TempDir(), "snapshot.json"))

	err := idx.Append([]ingest.DocumentChunk{
		lexChunk("a_0", "digital lending guidelines for non banking financial companies", "https://x/a"),
		lexChunk("b_0", "equity market circular about algorithmic trading systems", "https://x/b"),
		lexChunk("c_0", "lending norms lending caps and lending disclosures", "https://x/c"),
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	results := idx.Search("lending", 10)
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}
	// c_0 词频更高，应排第一
	if results[0].ID != "c_0" {
		t.Errorf("expected c_0 first, got %s", results[0].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("expected descending scores: %f, %f", results[0].Score, results[1].Score)
	}
	if results[0].Metadata["url"] != "https://x/c" {
		t.Errorf("metadata not carried: %v", results[0].Metadata)
	}

	t.Logf("✅ BM25 relevance order: %s (%.3f) > %s (%.3f)",
		results[0].ID, results[0].Score, results[1].ID, results[1].Score)
}

// TestLexicalSearchNoHits 零命中返回空
func TestLexicalSearchNoHits(t *testing.T) {
	idx := NewLexicalIndex(filepath.Join(t.TempDir(), "snapshot.json"))
	_ = idx.Append([]ingest.DocumentChunk{
		lexChunk("a_0", "payment aggregator licensing", "https://x/a"),
	})

	if results := idx.Search("cryptocurrency", 5); len(results) != 0 {
		t.Errorf("expected no hits, got %d", len(results))
	}
	if results := idx.Search("", 5); len(results) != 0 {
		t.Errorf("expected no hits for empty query, got %d", len(results))
	}
}

// TestLexicalAppendDedup 同 ID 重复追加覆盖而非重复
func TestLexicalAppendDedup(t *testing.T) {
	idx := NewLexicalIndex(filepath.Join(t.TempDir(), "snapshot.json"))

	_ = idx.Append([]ingest.DocumentChunk{lexChunk("a_0", "original text about lending", "https://x/a")})
	_ = idx.Append([]ingest.DocumentChunk{lexChunk("a_0", "replacement text about deposits", "https://x/a")})

	if idx.Len() != 1 {
		t.Fatalf("expected 1 document after dedup, got %d", idx.Len())
	}
	if results := idx.Search("deposits", 5); len(results) != 1 {
		t.Error("expected replacement text to be searchable")
	}
	if results := idx.Search("lending", 5); len(results) != 0 {
		t.Error("expected original text to be replaced")
	}
}

// TestLexicalSnapshotReload 新实例从快照恢复语料
func TestLexicalSnapshotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	idx := NewLexicalIndex(path)
	err := idx.Append([]ingest.DocumentChunk{
		lexChunk("a_0", "prepaid instruments circular", "https://x/a"),
		lexChunk("b_0", "know your customer directions", "https://x/b"),
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	reloaded := NewLexicalIndex(path)
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 documents after reload, got %d", reloaded.Len())
	}
	results := reloaded.Search("prepaid instruments", 5)
	if len(results) == 0 || results[0].ID != "a_0" {
		t.Errorf("expected a_0 hit after reload, got %v", results)
	}

	t.Logf("✅ Snapshot reload restored %d documents", reloaded.Len())
}

// TestLexicalSearchPicksUpExternalRebuild 其他进程重建快照后检索自动重载
func TestLexicalSearchPicksUpExternalRebuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")

	writer := NewLexicalIndex(path)
	reader := NewLexicalIndex(path)

	if err := writer.Append([]ingest.DocumentChunk{
		lexChunk("a_0", "margin trading facility norms", "https://x/a"),
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	// reader 实例在快照写出前创建，Search 时按 mtime 重载
	results := reader.Search("margin trading", 5)
	if len(results) != 1 {
		t.Fatalf("expected reader to pick up external rebuild, got %d hits", len(results))
	}
}

// TestTokenize 小写化并剔除标点
func TestTokenize(t *testing.T) {
	terms := tokenize("RBI/2026-27: Digital-Lending (Amendment) Rules!")
	want := []string{"rbi", "2026", "27", "digital", "lending", "amendment", "rules"}
	if len(terms) != len(want) {
		t.Fatalf("expected %d terms, got %d: %v", len(want), len(terms), terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("term %d: expected %q, got %q", i, want[i], terms[i])
		}
	}
}
