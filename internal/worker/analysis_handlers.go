package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"cvinsight/internal/artifacts"
	"cvinsight/internal/tasks"
)

// UserPurger 删除用户的全部分析结果，由 *artifacts.Store 实现。
type UserPurger interface {
	PurgeUser(ctx context.Context, userID uint) (int, error)
}

// SweepTaskHandler 消费孤儿对象清理任务。
type SweepTaskHandler struct {
	sweeper *artifacts.Sweeper
	logger  *slog.Logger
}

func NewSweepTaskHandler(sweeper *artifacts.Sweeper, logger *slog.Logger) *SweepTaskHandler {
	return &SweepTaskHandler{sweeper: sweeper, logger: logger}
}

// ProcessTask 实现 asynq.Handler。
func (h *SweepTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SweepOrphansPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			h.logger.Error("failed to unmarshal sweep payload", slog.Any("error", err))
			return fmt.Errorf("unmarshal payload: %w", asynq.SkipRetry)
		}
	}
	log := h.logger.With(
		slog.String("task_type", t.Type()),
		slog.String("correlation_id", correlationIDOrNew(payload.CorrelationID)),
	)

	sweeper := h.sweeper.WithGrace(time.Duration(payload.GraceSeconds) * time.Second)
	report, err := sweeper.Run(ctx)
	if err != nil {
		logTaskFailure(ctx, log, "orphan sweep failed", err)
		return err
	}
	log.Info("orphan sweep task completed",
		slog.Int("deleted", report.Deleted),
		slog.Int("failed", report.Failed),
	)
	if report.Failed > 0 {
		// 下一个调度周期会重新处理失败的对象，这里不重试整轮。
		log.Warn("some orphan objects could not be deleted", slog.Int("failed", report.Failed))
	}
	return nil
}

// PurgeUserTaskHandler 消费用户分析结果清除任务。
type PurgeUserTaskHandler struct {
	purger UserPurger
	logger *slog.Logger
}

func NewPurgeUserTaskHandler(purger UserPurger, logger *slog.Logger) *PurgeUserTaskHandler {
	return &PurgeUserTaskHandler{purger: purger, logger: logger}
}

// ProcessTask 实现 asynq.Handler。失败时交给 asynq 重试，删除本身是幂等的。
func (h *PurgeUserTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.PurgeUserPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("failed to unmarshal purge payload", slog.Any("error", err))
		return fmt.Errorf("unmarshal payload: %w", asynq.SkipRetry)
	}
	if payload.UserID == 0 {
		h.logger.Error("purge payload without user id")
		return fmt.Errorf("missing user id: %w", asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("task_type", t.Type()),
		slog.Uint64("user_id", uint64(payload.UserID)),
		slog.String("correlation_id", correlationIDOrNew(payload.CorrelationID)),
	)

	removed, err := h.purger.PurgeUser(ctx, payload.UserID)
	if err != nil {
		logTaskFailure(ctx, log, "purge user analyses failed", err, slog.Int("removed", removed))
		return err
	}
	log.Info("purge user task completed", slog.Int("removed", removed))
	return nil
}

func correlationIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// logTaskFailure 在最后一次重试时记 Error，其余记 Warn。
func logTaskFailure(ctx context.Context, log *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.Any("error", err))
	if isFinalAsynqAttempt(ctx) {
		log.Error(msg, attrs...)
		return
	}
	log.Warn(msg+", will retry", attrs...)
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
