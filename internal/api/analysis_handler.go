package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"cvinsight/internal/analysis"
	"cvinsight/internal/api/middleware"
	"cvinsight/internal/artifacts"
	"cvinsight/internal/pipeline"
	"cvinsight/internal/tasks"
)

const (
	// multipart 表单除文件外的开销上限。
	formOverheadBytes = 1 << 20
	multipartMemory   = 32 << 20
)

// Analyzer 执行一次分析，由 *pipeline.Analyzer 实现。
type Analyzer interface {
	Analyze(ctx context.Context, req pipeline.Request) (*analysis.Artifact, error)
}

// AnalysisStore 是读取与删除分析结果所需的操作，由 *artifacts.Store 实现。
type AnalysisStore interface {
	GetLatestForSlot(ctx context.Context, slot analysis.Slot) (*analysis.Artifact, error)
	ListByUser(ctx context.Context, userID uint) (artifacts.Listing, error)
	DeleteSlot(ctx context.Context, slot analysis.Slot) error
}

// TaskEnqueuer 投递后台任务，由 *asynq.Client 实现。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ProviderLister 返回已启用的 provider，由 *llm.Registry 实现。
type ProviderLister interface {
	Providers() []analysis.Provider
}

// AnalysisHandler 负责简历分析相关的 API 请求。
type AnalysisHandler struct {
	analyzer       Analyzer
	store          AnalysisStore
	tasks          TaskEnqueuer
	providers      ProviderLister
	maxUploadBytes int64
}

// NewAnalysisHandler 构造 AnalysisHandler。
func NewAnalysisHandler(analyzer Analyzer, store AnalysisStore, enqueuer TaskEnqueuer, providers ProviderLister, maxUploadBytes int64) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:       analyzer,
		store:          store,
		tasks:          enqueuer,
		providers:      providers,
		maxUploadBytes: maxUploadBytes,
	}
}

type kindItem struct {
	ID    analysis.Kind `json:"id"`
	Title string        `json:"title"`
}

type providerItem struct {
	ID      analysis.Provider `json:"id"`
	Service string            `json:"service"`
}

// CreateAnalysis 接收 multipart 上传并同步执行分析。
func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	if status, err := h.parseForm(c); err != nil {
		log.Warn("parse upload form failed", slog.Int("status", status), slog.Any("error", err))
		Error(c, status, err.Error())
		return
	}

	kind, err := analysis.ParseKind(c.PostForm("analysis_type"))
	if err != nil {
		AnalysisError(c, err)
		return
	}
	provider, err := analysis.ParseProvider(c.PostForm("ai_provider"))
	if err != nil {
		AnalysisError(c, err)
		return
	}

	data, filename, status, err := h.readUpload(c)
	if err != nil {
		log.Warn("read upload failed", slog.Int("status", status), slog.Any("error", err))
		Error(c, status, err.Error())
		return
	}

	artifact, err := h.analyzer.Analyze(c.Request.Context(), pipeline.Request{
		UserID:        userID,
		Data:          data,
		Filename:      filename,
		Kind:          kind,
		Provider:      provider,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		AnalysisError(c, err)
		return
	}
	c.JSON(http.StatusCreated, artifact)
}

var (
	errBadForm      = errors.New("expected multipart form")
	errMissingFile  = errors.New("missing file")
	errFileTooLarge = errors.New("file too large")
)

// parseForm 在解析表单之前限制请求体大小。
func (h *AnalysisHandler) parseForm(c *gin.Context) (int, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+formOverheadBytes)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, errFileTooLarge
		}
		return http.StatusBadRequest, errBadForm
	}
	return http.StatusOK, nil
}

func (h *AnalysisHandler) readUpload(c *gin.Context) ([]byte, string, int, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, "", http.StatusBadRequest, errMissingFile
	}
	if file.Size > h.maxUploadBytes {
		return nil, "", http.StatusRequestEntityTooLarge, errFileTooLarge
	}

	f, err := file.Open()
	if err != nil {
		return nil, "", http.StatusInternalServerError, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxUploadBytes+1))
	if err != nil {
		return nil, "", http.StatusInternalServerError, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.maxUploadBytes {
		return nil, "", http.StatusRequestEntityTooLarge, errFileTooLarge
	}
	return data, file.Filename, http.StatusOK, nil
}

// ListAnalyses 返回当前用户每个槽位的最新分析摘要。
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	listing, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": listing})
}

// ListKinds 返回分析类型目录与已启用的 provider。
func (h *AnalysisHandler) ListKinds(c *gin.Context) {
	kinds := make([]kindItem, 0, len(analysis.Kinds()))
	for _, k := range analysis.Kinds() {
		kinds = append(kinds, kindItem{ID: k, Title: k.Title()})
	}
	providers := []providerItem{}
	if h.providers != nil {
		for _, p := range h.providers.Providers() {
			providers = append(providers, providerItem{ID: p, Service: p.Service()})
		}
	}
	c.JSON(http.StatusOK, gin.H{"kinds": kinds, "providers": providers})
}

// GetAnalysis 返回某个槽位的最新分析。
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	slot, ok := h.slotFromPath(c)
	if !ok {
		return
	}
	artifact, err := h.store.GetLatestForSlot(c.Request.Context(), slot)
	if err != nil {
		AnalysisError(c, err)
		return
	}
	if artifact == nil {
		NotFound(c, "analysis not found")
		return
	}
	c.JSON(http.StatusOK, artifact)
}

// DeleteAnalysis 删除某个槽位；槽位为空时同样返回 204。
func (h *AnalysisHandler) DeleteAnalysis(c *gin.Context) {
	slot, ok := h.slotFromPath(c)
	if !ok {
		return
	}
	if err := h.store.DeleteSlot(c.Request.Context(), slot); err != nil {
		AnalysisError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PurgeAnalyses 异步清除当前用户的全部分析结果。
func (h *AnalysisHandler) PurgeAnalyses(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := middleware.LoggerFromContext(c)

	task, err := tasks.NewPurgeUserTask(userID, middleware.GetCorrelationID(c))
	if err != nil {
		log.Error("build purge task failed", slog.Any("error", err))
		Internal(c, "failed to build purge task")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	info, err := h.tasks.EnqueueContext(ctx, task)
	if err != nil {
		log.Error("enqueue purge task failed", slog.Any("error", err))
		Internal(c, "failed to enqueue purge")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "purge request accepted",
		"task_id": info.ID,
	})
}

func (h *AnalysisHandler) slotFromPath(c *gin.Context) (analysis.Slot, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return analysis.Slot{}, false
	}
	kind, err := analysis.ParseKind(c.Param("kind"))
	if err != nil {
		AnalysisError(c, err)
		return analysis.Slot{}, false
	}
	provider, err := analysis.ParseProvider(c.Param("provider"))
	if err != nil {
		AnalysisError(c, err)
		return analysis.Slot{}, false
	}
	return analysis.Slot{UserID: userID, Kind: kind, Provider: provider}, true
}
