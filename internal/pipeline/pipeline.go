// Package pipeline 串联抽取、提示词、模型调用、规范化与存储，
// 对外只暴露 Analyze 一个入口。
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cvinsight/internal/analysis"
	"cvinsight/internal/errcode"
	"cvinsight/internal/extract"
	"cvinsight/internal/llm"
	"cvinsight/internal/normalize"
	"cvinsight/internal/prompts"
	"cvinsight/internal/scan"
)

// AdapterSource 按 provider 返回已配置的模型适配器，通常是 *llm.Registry。
type AdapterSource interface {
	Get(p analysis.Provider) (llm.Adapter, error)
}

// ArtifactSaver 持久化规范化结果，通常是 *artifacts.Store。
type ArtifactSaver interface {
	Save(ctx context.Context, userID uint, artifact *analysis.Artifact) (string, error)
}

// ExtractFunc 把上传的字节转为纯文本。
type ExtractFunc func(data []byte, filename string) (string, error)

// Request 是一次分析调用的全部输入。
type Request struct {
	UserID        uint
	Data          []byte
	Filename      string
	Kind          analysis.Kind
	Provider      analysis.Provider
	CorrelationID string
}

// Deps 聚合 Analyzer 的协作者；Scanner、Extract、Notifier 可为空。
type Deps struct {
	Adapters AdapterSource
	Store    ArtifactSaver
	Scanner  scan.Scanner
	Extract  ExtractFunc
	Notifier Notifier
	Logger   *slog.Logger
}

// Analyzer 执行简历分析流水线。
type Analyzer struct {
	adapters AdapterSource
	store    ArtifactSaver
	scanner  scan.Scanner
	extract  ExtractFunc
	notifier Notifier
	logger   *slog.Logger
}

// New 创建 Analyzer。
func New(deps Deps) *Analyzer {
	a := &Analyzer{
		adapters: deps.Adapters,
		store:    deps.Store,
		scanner:  deps.Scanner,
		extract:  deps.Extract,
		notifier: deps.Notifier,
		logger:   deps.Logger,
	}
	if a.scanner == nil {
		a.scanner = scan.Noop{}
	}
	if a.extract == nil {
		a.extract = extract.Extract
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Analyze 依次执行 扫描 → 抽取 → 组装提示词 → 调用模型 → 规范化 → 保存。
// 任一阶段失败立即返回，不产生部分写入。
// 调用方断开连接不会中止流水线：模型调用按次计费，结果仍需落盘。
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*analysis.Artifact, error) {
	ctx = context.WithoutCancel(ctx)
	log := a.logger.With(
		slog.Uint64("user_id", uint64(req.UserID)),
		slog.String("analysis_type", string(req.Kind)),
		slog.String("ai_provider", string(req.Provider)),
		slog.String("filename", req.Filename),
	)
	if req.CorrelationID != "" {
		log = log.With(slog.String("correlation_id", req.CorrelationID))
	}
	start := time.Now()

	artifact, key, stage, err := a.run(ctx, req, log)
	if err != nil {
		log.Error("analysis failed",
			slog.String("stage", stage),
			slog.String("error_kind", string(analysis.KindOf(err))),
			slog.Any("error", err),
		)
		a.notify(ctx, req, failureNotification(req, err), log)
		return nil, err
	}

	log.Info("analysis completed",
		slog.Int("score", artifact.Score),
		slog.String("object_key", key),
		slog.Duration("elapsed", time.Since(start)),
	)
	a.notify(ctx, req, successNotification(req, artifact, key), log)
	return artifact, nil
}

func (a *Analyzer) run(ctx context.Context, req Request, log *slog.Logger) (*analysis.Artifact, string, string, error) {
	if !req.Kind.Valid() {
		return nil, "", "validate", analysis.UnknownKind(string(req.Kind))
	}
	if !req.Provider.Valid() {
		return nil, "", "validate", analysis.UnknownProvider(string(req.Provider))
	}
	adapter, err := a.adapters.Get(req.Provider)
	if err != nil {
		return nil, "", "adapter", err
	}

	if err := a.scanner.Scan(ctx, req.Data); err != nil {
		return nil, "", "scan", err
	}

	text, err := a.extract(req.Data, req.Filename)
	if err != nil {
		return nil, "", "extract", err
	}
	log.Debug("document text extracted", slog.Int("chars", len([]rune(text))))

	system, user, err := prompts.Compose(req.Kind, text)
	if err != nil {
		return nil, "", "prompt", err
	}

	raw, err := adapter.Invoke(ctx, system, user)
	if err != nil {
		return nil, "", "invoke", err
	}

	artifact, err := normalize.Normalize(raw, req.Kind, req.Provider)
	if err != nil {
		var aerr *analysis.Error
		if errors.As(err, &aerr) && aerr.Raw != "" {
			log.Warn("unparseable provider reply", slog.String("raw", llm.TruncateForLog(aerr.Raw)))
		}
		return nil, "", "normalize", err
	}

	key, err := a.store.Save(ctx, req.UserID, artifact)
	if err != nil {
		return nil, "", "save", err
	}
	return artifact, key, "", nil
}

func (a *Analyzer) notify(ctx context.Context, req Request, msg Notification, log *slog.Logger) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, req.UserID, msg); err != nil {
		log.Warn("publish analysis notification failed", slog.Any("error", err))
	}
}

func successNotification(req Request, artifact *analysis.Artifact, key string) Notification {
	return Notification{
		Status:        StatusSuccess,
		AnalysisType:  string(artifact.AnalysisType),
		AIProvider:    string(artifact.AIProvider),
		Score:         artifact.Score,
		ObjectKey:     key,
		CorrelationID: req.CorrelationID,
		ErrorCode:     errcode.OK,
	}
}

func failureNotification(req Request, err error) Notification {
	msg := Notification{
		Status:        StatusError,
		AnalysisType:  string(req.Kind),
		AIProvider:    string(req.Provider),
		CorrelationID: req.CorrelationID,
		ErrorCode:     errcode.FromError(err),
		ErrorKind:     string(analysis.KindOf(err)),
	}
	if aerr, ok := analysis.AsError(err); ok {
		msg.ErrorMessage = aerr.Message
		msg.ErrorReason = aerr.Reason
	} else {
		msg.ErrorMessage = "internal error"
	}
	return msg
}
