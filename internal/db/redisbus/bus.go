// Package redisbus 基于 Redis Streams 的事件通道实现。
//
// 语义对齐 stream 包的契约：
//   - XADD 追加，流内全序（强于按 key 保序的最低要求，key 仍随消息携带）；
//   - 消费组 XREADGROUP 读取，处理后 XACK；
//   - 消费者崩溃后，pending 超过 claimMinIdle 的消息由 XAUTOCLAIM
//     转移给存活消费者重投 —— at-least-once 的来源；
//   - handler 返回错误的消息记录日志后照常 ACK（重试只来自崩溃重投），
//     避免毒消息无限循环。
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"regpulse/internal/stream"
	applog "regpulse/internal/platform/log"
)

const (
	publishRetries = 3
	publishBackoff = time.Second
	readBlock      = 5 * time.Second
	readCount      = 10
	claimMinIdle   = 30 * time.Second
)

// Bus Redis Streams 发布/消费端。
type Bus struct {
	client       *redis.Client
	consumerName string
}

// New 创建 Bus。consumerName 进程内唯一，用于消费组成员身份。
func New(client *redis.Client) *Bus {
	return &Bus{
		client:       client,
		consumerName: "consumer-" + uuid.New().String()[:8],
	}
}

// Publish 将事件 JSON 编码后 XADD 到主题流。失败最多重试 3 次，固定 1s 退避；
// 超过次数记录 error 日志并返回错误（调用方不升级为管道失败）。
func (b *Bus) Publish(ctx context.Context, topic, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= publishRetries; attempt++ {
		err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: topic,
			Values: map[string]interface{}{
				"key":   key,
				"value": string(data),
			},
		}).Err()
		if err == nil {
			applog.Debug("[Bus] Published", "topic", topic, "key", key)
			return nil
		}

		lastErr = err
		applog.Warn("[Bus] Publish failed, retrying",
			"topic", topic,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(publishBackoff):
		}
	}

	applog.Error("[Bus] Publish gave up after retries", "topic", topic, "key", key, "error", lastErr)
	return fmt.Errorf("publish to %s: %w", topic, lastErr)
}

// Run 以消费组成员身份消费主题，阻塞直到 ctx 取消。
// 每轮先认领死消费者遗留的 pending 消息，再读取新消息。
func (b *Bus) Run(ctx context.Context, topic, group string, handler stream.Handler) error {
	if err := b.ensureGroup(ctx, topic, group); err != nil {
		return err
	}

	applog.Info("[Bus] Consumer started",
		"topic", topic,
		"group", group,
		"consumer", b.consumerName,
	)

	for {
		select {
		case <-ctx.Done():
			applog.Info("[Bus] Consumer stopped", "topic", topic, "group", group)
			return nil
		default:
		}

		b.claimStale(ctx, topic, group, handler)

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumerName,
			Streams:  []string{topic, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			applog.Error("[Bus] Read failed", "topic", topic, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, str := range res {
			for _, xmsg := range str.Messages {
				b.handleMessage(ctx, topic, group, xmsg, handler)
			}
		}
	}
}

// handleMessage 解码并处理一条消息，处理完成后 ACK。
func (b *Bus) handleMessage(ctx context.Context, topic, group string, xmsg redis.XMessage, handler stream.Handler) {
	msg := stream.Message{
		ID:    xmsg.ID,
		Topic: topic,
	}
	if k, ok := xmsg.Values["key"].(string); ok {
		msg.Key = k
	}
	if v, ok := xmsg.Values["value"].(string); ok {
		msg.Value = []byte(v)
	}

	if len(msg.Value) == 0 {
		applog.Warn("[Bus] Message missing value field, skipping", "topic", topic, "id", xmsg.ID)
	} else if err := handler(ctx, msg); err != nil {
		applog.Error("[Bus] Handler failed, skipping message",
			"topic", topic,
			"id", xmsg.ID,
			"error", err,
		)
	}

	if err := b.client.XAck(ctx, topic, group, xmsg.ID).Err(); err != nil {
		applog.Warn("[Bus] Ack failed", "topic", topic, "id", xmsg.ID, "error", err)
	}
}

// claimStale 认领死掉的消费者遗留的 pending 消息（崩溃重投路径）。
func (b *Bus) claimStale(ctx context.Context, topic, group string, handler stream.Handler) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   topic,
		Group:    group,
		Consumer: b.consumerName,
		MinIdle:  claimMinIdle,
		Start:    "0-0",
		Count:    readCount,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			applog.Debug("[Bus] Autoclaim failed", "topic", topic, "error", err)
		}
		return
	}

	if len(msgs) > 0 {
		applog.Info("[Bus] Reclaimed pending messages", "topic", topic, "count", len(msgs))
	}
	for _, xmsg := range msgs {
		b.handleMessage(ctx, topic, group, xmsg, handler)
	}
}

// ensureGroup 创建消费组（流不存在时一并创建）。已存在视为成功。
func (b *Bus) ensureGroup(ctx context.Context, topic, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, topic, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, topic, err)
	}
	return nil
}
