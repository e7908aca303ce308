package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	applog "regpulse/internal/platform/log"
)

// MonitorConfig Monitor 运行参数。
type MonitorConfig struct {
	// Sources 源标识 -> feed URL
	Sources       map[string]string
	CheckInterval time.Duration
	FetchTimeout  time.Duration
	RawTopic      string
}

// Monitor 数据源轮询服务：周期性检查各 feed，把新条目作为
// ChangeEvent 发布到 raw-updates 主题。单个源的失败不影响其他源。
type Monitor struct {
	cfg       MonitorConfig
	seen      SeenStore
	publisher Publisher
	client    *http.Client
}

// NewMonitor 创建轮询服务。
func NewMonitor(cfg MonitorConfig, seen SeenStore, publisher Publisher) *Monitor {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 100 * time.Second
	}
	return &Monitor{
		cfg:       cfg,
		seen:      seen,
		publisher: publisher,
		client:    &http.Client{Timeout: timeout},
	}
}

// Run 启动轮询循环，直到 ctx 取消。
func (m *Monitor) Run(ctx context.Context) error {
	applog.Info("[Monitor] Starting feed monitor",
		"sources", len(m.cfg.Sources),
		"interval", m.cfg.CheckInterval.String(),
	)

	for {
		m.CheckOnce(ctx)

		applog.Debug("[Monitor] Cycle complete, sleeping", "interval", m.cfg.CheckInterval.String())
		select {
		case <-ctx.Done():
			applog.Info("[Monitor] Stopped")
			return nil
		case <-time.After(m.cfg.CheckInterval):
		}
	}
}

// CheckOnce 检查所有源一轮。任何单源错误记录日志后继续下一个源。
func (m *Monitor) CheckOnce(ctx context.Context) {
	// map 遍历顺序随机，排序保证日志与事件顺序可复现
	names := make([]string, 0, len(m.cfg.Sources))
	for name := range m.cfg.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, source := range names {
		url := m.cfg.Sources[source]
		if err := m.checkSource(ctx, source, url); err != nil {
			applog.Error("[Monitor] Failed to process feed", "source", source, "error", err)
		}
	}
}

// checkSource 抓取并处理单个源。条目按发布顺序（旧到新）检查，
// 使得事件顺序近似源内发布顺序。
func (m *Monitor) checkSource(ctx context.Context, source, url string) error {
	applog.Info("[Monitor] Checking feed", "source", source, "url", url)

	data, err := m.fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("fetch feed: %w", err)
	}

	items, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parse feed: %w", err)
	}

	// feed 通常新条目在前，倒序遍历即旧条目优先
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if !m.seen.IsNew(item) {
			continue
		}

		applog.Info("[Monitor] New content found", "source", source, "title", item.Title)

		published := ""
		if !item.Published.IsZero() {
			published = item.Published.UTC().Format(time.RFC3339)
		}
		event := ChangeEvent{
			Source:    source,
			Title:     item.Title,
			URL:       item.Link,
			Published: published,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		if err := m.publisher.Publish(ctx, m.cfg.RawTopic, source, event); err != nil {
			// 发布失败不回滚指纹：宁可丢事件也不无限重发（at-least-once 由流侧保证）
			applog.Error("[Monitor] Failed to publish change event",
				"source", source,
				"url", item.Link,
				"error", err,
			)
		}
	}
	return nil
}

func (m *Monitor) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
