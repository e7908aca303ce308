// Package vectorhttp 托管向量服务的 REST 客户端，
// 实现 index.VectorIndex 接口。
package vectorhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"regpulse/internal/domain/index"
	applog "regpulse/internal/platform/log"
)

// Config 向量服务连接配置。
type Config struct {
	BaseURL   string // 服务地址，e.g. https://vectors.example.com
	APIKey    string
	IndexName string
	Metric    string // 默认 cosine
}

// Client 向量服务客户端。
type Client struct {
	cfg    Config
	client *http.Client
}

// New 创建客户端。
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Metric == "" {
		cfg.Metric = "cosine"
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureIndex 检查索引是否存在，不存在则按维度创建。
func (c *Client) EnsureIndex(ctx context.Context, dims int) error {
	status, _, err := c.do(ctx, http.MethodGet, "/indexes/"+c.cfg.IndexName, nil)
	if err != nil {
		return fmt.Errorf("describe index: %w", err)
	}
	if status == http.StatusOK {
		applog.Info("[VectorDB] Index exists", "index", c.cfg.IndexName)
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("describe index: unexpected status %d", status)
	}

	body := map[string]interface{}{
		"name":      c.cfg.IndexName,
		"dimension": dims,
		"metric":    c.cfg.Metric,
	}
	status, respBody, err := c.do(ctx, http.MethodPut, "/indexes/"+c.cfg.IndexName, body)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("create index: status %d: %s", status, respBody)
	}

	applog.Info("[VectorDB] Index created",
		"index", c.cfg.IndexName,
		"dims", dims,
		"metric", c.cfg.Metric,
	)
	return nil
}

// Upsert 批量写入向量，按 ID 覆盖。
func (c *Client) Upsert(ctx context.Context, records []index.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	body := map[string]interface{}{
		"vectors": records,
	}
	status, respBody, err := c.do(ctx, http.MethodPost, "/indexes/"+c.cfg.IndexName+"/vectors/upsert", body)
	if err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("upsert vectors: status %d: %s", status, respBody)
	}
	return nil
}

type queryResponse struct {
	Matches []index.QueryMatch `json:"matches"`
}

// Query kNN 检索。
func (c *Client) Query(ctx context.Context, vector []float32, topK int) ([]index.QueryMatch, error) {
	body := map[string]interface{}{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
	}
	status, respBody, err := c.do(ctx, http.MethodPost, "/indexes/"+c.cfg.IndexName+"/query", body)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("query vectors: status %d: %s", status, respBody)
	}

	var resp queryResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse query response: %w", err)
	}
	return resp.Matches, nil
}

// do 发送请求并返回状态码与响应体。
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
