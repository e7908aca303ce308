package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestSplitShortText 短文本不切分
func TestSplitShortText(t *testing.T) {
	c := NewChunker(1000, 150)

	chunks := c.Split("A short regulatory notice.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "A short regulatory notice." {
		t.Errorf("unexpected chunk content: %q", chunks[0])
	}
}

// TestSplitEmptyText 空白输入不产出块
func TestSplitEmptyText(t *testing.T) {
	c := NewChunker(1000, 150)

	for _, input := range []string{"", "   ", "\n\n\t"} {
		if chunks := c.Split(input); chunks != nil {
			t.Errorf("expected nil chunks for %q, got %d", input, len(chunks))
		}
	}
}

// TestSplitHardCut 无断点长文本按步长硬切
func TestSplitHardCut(t *testing.T) {
	size, overlap := 100, 20
	c := NewChunker(size, overlap)

	// N*(size-overlap)+overlap 个字符恰好产出 N 个块
	n := 5
	text := strings.Repeat("x", n*(size-overlap)+overlap)

	chunks := c.Split(text)
	if len(chunks) != n {
		t.Fatalf("expected %d chunks, got %d", n, len(chunks))
	}
	for i, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > size {
			t.Errorf("chunk %d exceeds size: %d runes", i, utf8.RuneCountInString(chunk))
		}
	}

	// 相邻块共享 overlap 长度的尾部/头部
	tail := chunks[0][len(chunks[0])-overlap:]
	if !strings.HasPrefix(chunks[1], tail) {
		t.Error("expected second chunk to start with overlap of first")
	}

	t.Logf("✅ Hard cut produced %d chunks with overlap %d", len(chunks), overlap)
}

// TestSplitParagraphBoundaries 段落边界优先于硬切
func TestSplitParagraphBoundaries(t *testing.T) {
	c := NewChunker(100, 20)

	para := strings.Repeat("word ", 12) // ~60 字符
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			t.Errorf("chunk %d is empty", i)
		}
		if utf8.RuneCountInString(chunk) > 100 {
			t.Errorf("chunk %d exceeds size", i)
		}
	}
}

// TestSplitDeterministic 同一输入重复切分产出相同结果
func TestSplitDeterministic(t *testing.T) {
	c := NewChunker(200, 50)
	text := strings.Repeat("The central bank issued a new circular on digital lending. ", 30)

	first := c.Split(text)
	second := c.Split(text)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
	t.Logf("✅ Deterministic split: %d chunks", len(first))
}

// TestNewChunkerDefaults 非法参数回落到默认值
func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(0, -1)
	if c.chunkSize != 1000 {
		t.Errorf("expected default chunk size 1000, got %d", c.chunkSize)
	}
	if c.overlap != 250 {
		t.Errorf("expected default overlap size/4=250, got %d", c.overlap)
	}

	// overlap >= size 同样回落
	c = NewChunker(100, 100)
	if c.overlap != 25 {
		t.Errorf("expected overlap fallback 25, got %d", c.overlap)
	}
}
