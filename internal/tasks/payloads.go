package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeSweepOrphans = "analysis:sweep_orphans"
	TypePurgeUser    = "analysis:purge_user"
)

// 清理任务互斥，避免多个调度周期叠加执行。
const sweepUniqueTTL = 30 * time.Minute

// SweepOrphansPayload 描述一次孤儿对象清理。GraceSeconds 为 0 时使用 worker 配置。
type SweepOrphansPayload struct {
	GraceSeconds  int    `json:"grace_seconds,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// PurgeUserPayload 描述清除某个用户全部分析结果所需的最小信息。
type PurgeUserPayload struct {
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewSweepOrphansTask 构造孤儿对象清理任务。
func NewSweepOrphansTask(graceSeconds int, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepOrphansPayload{
		GraceSeconds:  graceSeconds,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSweepOrphans, payload, asynq.Unique(sweepUniqueTTL), asynq.MaxRetry(1)), nil
}

// NewPurgeUserTask 构造用户分析结果清除任务。
func NewPurgeUserTask(userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PurgeUserPayload{
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePurgeUser, payload, asynq.MaxRetry(5)), nil
}
