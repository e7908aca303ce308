package seenstore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"regpulse/internal/domain/feed"
	applog "regpulse/internal/platform/log"
)

// Store feed 条目去重状态库，SQLite 单写者嵌入式存储。
// 全量指纹在启动时加载进内存，新指纹同步落盘后才返回。
type Store struct {
	mu   sync.Mutex
	path string
	db   *sql.DB
	seen map[string]struct{}
}

const schema = `
CREATE TABLE IF NOT EXISTS seen_items (
	fingerprint TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	link        TEXT NOT NULL,
	first_seen  TEXT NOT NULL
);`

// Open 打开（或创建）指纹库。文件损坏时删除重建，视为空状态继续运行，
// 宁可重复处理也不阻塞管道。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	s := &Store{path: path, seen: make(map[string]struct{})}

	db, err := openAndLoad(path, s.seen)
	if err != nil {
		applog.Error("[SeenStore] State file unreadable, starting fresh", "path", path, "error", err)
		_ = os.Remove(path)
		s.seen = make(map[string]struct{})
		db, err = openAndLoad(path, s.seen)
		if err != nil {
			return nil, fmt.Errorf("recreate state db: %w", err)
		}
	}
	s.db = db

	applog.Info("[SeenStore] Loaded seen items from state", "count", len(s.seen), "path", path)
	return s, nil
}

func openAndLoad(path string, into map[string]struct{}) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	rows, err := db.Query(`SELECT fingerprint FROM seen_items`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load fingerprints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			db.Close()
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		into[fp] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("iterate fingerprints: %w", err)
	}
	return db, nil
}

// Fingerprint 条目指纹：sha256(title + link)。
func Fingerprint(item feed.Item) string {
	sum := sha256.Sum256([]byte(item.Title + item.Link))
	return hex.EncodeToString(sum[:])
}

// IsNew 判断条目是否首次出现。新条目的指纹在返回前记录并持久化；
// 无链接的条目恒为 false 且不写入任何状态。
func (s *Store) IsNew(item feed.Item) bool {
	if item.Link == "" {
		return false
	}

	fp := Fingerprint(item)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[fp]; ok {
		return false
	}

	s.seen[fp] = struct{}{}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO seen_items (fingerprint, title, link, first_seen) VALUES (?, ?, ?, ?)`,
		fp, item.Title, item.Link, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		// 落盘失败保留内存状态：进程重启后该条目会被重复处理，
		// 下游按 chunk id 幂等
		applog.Error("[SeenStore] Failed to persist fingerprint", "error", err)
	}
	return true
}

// Len 已记录的指纹数。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Clear 清空状态并删除底层文件，仅用于受控重置。
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close state db: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state db: %w", err)
	}

	s.seen = make(map[string]struct{})
	db, err := openAndLoad(s.path, s.seen)
	if err != nil {
		return fmt.Errorf("reopen state db: %w", err)
	}
	s.db = db

	applog.Info("[SeenStore] State cleared", "path", s.path)
	return nil
}

// Close 关闭底层数据库。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
