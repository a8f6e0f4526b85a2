// Package llm 封装三个大模型服务的调用细节。
//
// 每个 Adapter 只负责一次 (system, user) → 原始文本 的请求：不重试，不跨 provider 回退。
package llm

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"cvinsight/internal/analysis"
	"cvinsight/internal/metrics"
)

// 所有 provider 共用的生成参数。
const (
	Temperature     = 0.7
	MaxOutputTokens = 2000
)

// Adapter 是单个 provider 的请求/响应封装。
type Adapter interface {
	Provider() analysis.Provider
	Model() string
	// Invoke 返回模型的原始文本回复，错误一律为 *analysis.Error。
	Invoke(ctx context.Context, system, user string) (string, error)
}

// guarded 为 Adapter 加上硬超时、指标与边界日志。
type guarded struct {
	Adapter
	timeout time.Duration
	logger  *slog.Logger
}

// WithGuard 包装 adapter。timeout <= 0 表示不额外设置超时。
func WithGuard(a Adapter, timeout time.Duration, logger *slog.Logger) Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &guarded{Adapter: a, timeout: timeout, logger: logger}
}

func (g *guarded) Invoke(ctx context.Context, system, user string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := g.Adapter.Invoke(ctx, system, user)
	elapsed := time.Since(start)

	provider := string(g.Provider())
	if err != nil {
		// 适配器漏掉的错误在这里兜底分类。
		if _, ok := analysis.AsError(err); !ok {
			err = classify(g.Provider(), err)
		}
		metrics.ObserveLLMRequest(provider, string(analysis.KindOf(err)), elapsed)
		g.logger.Error("provider call failed",
			slog.String("provider", provider),
			slog.String("model", g.Model()),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err),
		)
		return "", err
	}

	metrics.ObserveLLMRequest(provider, "ok", elapsed)
	g.logger.Info("provider call succeeded",
		slog.String("provider", provider),
		slog.String("model", g.Model()),
		slog.Duration("elapsed", elapsed),
		slog.Int("reply_len", len(raw)),
		slog.String("reply_preview", TruncateForLog(raw)),
	)
	return raw, nil
}

const logPreviewRunes = 200

// TruncateForLog 截断模型回复，避免日志被整段 JSON 淹没。
func TruncateForLog(s string) string {
	if utf8.RuneCountInString(s) <= logPreviewRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:logPreviewRunes]) + "…"
}
