package digest

import (
	"path/filepath"
	"testing"
	"time"
)

// TestStoreAppendAndList 追加后按时间倒序读取
func TestStoreAppendAndList(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "latest_summaries.json"))

	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for i, title := range []string{"First", "Second", "Third"} {
		err := store.Append(Digest{
			Source:    "rbi",
			Title:     title,
			URL:       "https://x/" + title,
			Summary:   "summary of " + title,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("append %s: %v", title, err)
		}
	}

	digests, err := store.ListRecent(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(digests) != 3 {
		t.Fatalf("expected 3 digests, got %d", len(digests))
	}
	if digests[0].Title != "Third" || digests[2].Title != "First" {
		t.Errorf("expected newest first, got %s..%s", digests[0].Title, digests[2].Title)
	}

	t.Logf("✅ Digest log ordered newest first")
}

// TestStoreListLimit limit 截断
func TestStoreListLimit(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "latest_summaries.json"))
	for _, title := range []string{"A", "B", "C"} {
		if err := store.Append(Digest{Title: title, URL: "https://x/" + title}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	digests, err := store.ListRecent(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(digests))
	}
	if digests[0].Title != "C" || digests[1].Title != "B" {
		t.Errorf("unexpected order: %s, %s", digests[0].Title, digests[1].Title)
	}
}

// TestStoreEmptyFile 文件不存在时返回空
func TestStoreEmptyFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	digests, err := store.ListRecent(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(digests) != 0 {
		t.Errorf("expected empty result, got %d", len(digests))
	}
}

// TestStorePersistence 摘要跨实例保留
func TestStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest_summaries.json")

	if err := NewStore(path).Append(Digest{Title: "Kept", URL: "https://x/kept"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	digests, err := NewStore(path).ListRecent(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(digests) != 1 || digests[0].Title != "Kept" {
		t.Errorf("expected persisted digest, got %v", digests)
	}
}
