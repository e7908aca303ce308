package postgres

import (
	applog "regpulse/internal/platform/log"
	"context"
	"database/sql"
	"fmt"

	"regpulse/internal/domain/digest"

	"github.com/lib/pq"
)

// DigestStore 摘要的 PostgreSQL 归档。本地 JSON 日志始终写入，
// 配置了 DATABASE_URL 时额外归档一份，供报表类查询。
type DigestStore struct {
	db *sql.DB
}

// NewDigestStore 创建摘要归档
func NewDigestStore(db *sql.DB) *DigestStore {
	return &DigestStore{db: db}
}

// EnsureTable 确保 digests 表存在
func (s *DigestStore) EnsureTable(ctx context.Context) error {
	applog.Info("[Digest/PG] Ensuring digests table exists...")
	ddl := `
	CREATE TABLE IF NOT EXISTS digests (
		id         BIGSERIAL PRIMARY KEY,
		source     VARCHAR(64) NOT NULL,
		title      TEXT NOT NULL,
		url        TEXT NOT NULL,
		summary    TEXT NOT NULL,
		related    TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_digests_source_created ON digests(source, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, ddl)
	if err != nil {
		applog.Error("[Digest/PG] ❌ Failed to create table", "error", err)
	} else {
		applog.Info("[Digest/PG] ✅ Table ready")
	}
	return err
}

// Insert 归档一条摘要
func (s *DigestStore) Insert(ctx context.Context, d digest.Digest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO digests (source, title, url, summary, related, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.Source, d.Title, d.URL, d.Summary, pq.Array(d.Related), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("pg insert digest: %w", err)
	}
	return nil
}

// ListRecent 返回最近 limit 条摘要，新者在前
func (s *DigestStore) ListRecent(ctx context.Context, limit int) ([]digest.Digest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, title, url, summary, related, created_at
		 FROM digests ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pg list digests: %w", err)
	}
	defer rows.Close()

	var digests []digest.Digest
	for rows.Next() {
		var d digest.Digest
		if err := rows.Scan(&d.Source, &d.Title, &d.URL, &d.Summary, pq.Array(&d.Related), &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("pg scan digest: %w", err)
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}
