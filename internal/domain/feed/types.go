package feed

import (
	"context"
	"time"
)

// Item 一条 feed 条目（解析后）。
type Item struct {
	Title     string
	Link      string
	Published time.Time
}

// ChangeEvent 新文档变更事件，由 Monitor 产出、写入 raw-updates 主题。
// JSON 字段与流上的消息格式一一对应。
type ChangeEvent struct {
	Source    string `json:"source"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Published string `json:"published"`
	Timestamp string `json:"timestamp"` // 观测时间
}

// SeenStore 去重状态存储。IsNew 对新条目有副作用：返回 true 前已记录指纹。
type SeenStore interface {
	// IsNew 判断条目是否首次出现；无 Link 的条目恒为 false 且不记录。
	IsNew(item Item) bool
	// Clear 清空状态并删除底层存储，仅用于受控重置。
	Clear() error
	// Len 当前已记录指纹数。
	Len() int
}

// Publisher Monitor 依赖的事件发布端。
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}
