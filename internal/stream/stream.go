// Package stream 定义事件流抽象：按 key 有序、at-least-once 投递的
// 发布/订阅通道。生产实现为 Redis Streams（internal/db/redisbus），
// 测试实现为进程内总线（MemoryBus）。
//
// 投递契约：消息至少投递一次，消费者崩溃后未确认的消息会被重投，
// 因此下游处理必须幂等（内容派生 ID + 按 ID 去重）。
package stream

import "context"

// Message 一条已投递的流消息。
type Message struct {
	// ID 流内消息标识（由实现分配）。
	ID string
	// Topic 逻辑主题。
	Topic string
	// Key 分区键（同 key 消息保序）。
	Key string
	// Value JSON 编码的事件负载。
	Value []byte
}

// Handler 消费回调。返回错误表示该条消息处理失败；
// 失败消息记录日志后跳过，重试只能来自崩溃后的重投。
type Handler func(ctx context.Context, msg Message) error

// Publisher 事件发布端。value 会被 JSON 编码。
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// Consumer 事件消费端。Run 阻塞直到 ctx 取消，取消时当前消息处理完才返回。
type Consumer interface {
	Run(ctx context.Context, topic, group string, handler Handler) error
}
