package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Notification 通过 Redis Pub/Sub 推送给订阅方（网关 / 前端）。
// 字段名与前端解析保持一致。
type Notification struct {
	Status        string `json:"status"`
	AnalysisType  string `json:"analysis_type"`
	AIProvider    string `json:"ai_provider"`
	Score         int    `json:"score,omitempty"`
	ObjectKey     string `json:"object_key,omitempty"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorKind     string `json:"error_kind,omitempty"`
	ErrorReason   string `json:"error_reason,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Notifier 发布分析完成 / 失败事件。
type Notifier interface {
	Notify(ctx context.Context, userID uint, msg Notification) error
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier 把事件发布到 user_notify:<user_id> 频道。
type RedisNotifier struct {
	client publisher
}

// NewRedisNotifier 创建基于 Redis Pub/Sub 的 Notifier。
func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Channel 返回用户的通知频道名。
func Channel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

func (n *RedisNotifier) Notify(ctx context.Context, userID uint, msg Notification) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := Channel(userID)
	if err := n.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
