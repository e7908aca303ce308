package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	applog "regpulse/internal/platform/log"
)

// MemoryBus 进程内事件总线：Publish 同步分发给所有已注册的 handler。
// 用于测试与单进程部署，不提供跨进程持久化。
type MemoryBus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	seq      int64
}

// NewMemoryBus 创建进程内总线。
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

// Subscribe 注册 handler。同一主题可注册多个 handler（模拟多个消费组）。
func (b *MemoryBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish 同步投递。handler 错误记录日志后继续，与流式消费语义一致。
func (b *MemoryBus) Publish(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	b.mu.Lock()
	b.seq++
	msg := Message{
		ID:    strconv.FormatInt(b.seq, 10),
		Topic: topic,
		Key:   key,
		Value: data,
	}
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, msg); err != nil {
			applog.Error("[MemoryBus] Handler failed", "topic", topic, "error", err)
		}
	}
	return nil
}
