package artifacts

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cvinsight/internal/analysis"
	"cvinsight/internal/metrics"
)

// SweepReport 汇总一次孤儿对象清理。
type SweepReport struct {
	Scanned    int `json:"scanned"`
	Referenced int `json:"referenced"`
	Young      int `json:"young"`
	Deleted    int `json:"deleted"`
	Failed     int `json:"failed"`
}

// Sweeper 删除命名空间下没有任何索引行引用、且超过宽限期的对象。
// 宽限期覆盖 Save 中“对象已写入、索引行尚未插入”的窗口。
type Sweeper struct {
	objects     ObjectStore
	index       *Index
	namespace   string
	grace       time.Duration
	concurrency int
	now         func() time.Time
	logger      *slog.Logger
}

func NewSweeper(objects ObjectStore, index *Index, namespace string, grace time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		objects:     objects,
		index:       index,
		namespace:   CleanNamespace(namespace),
		grace:       grace,
		concurrency: 8,
		now:         time.Now,
		logger:      logger,
	}
}

// WithGrace 返回使用另一宽限期的副本，grace <= 0 时返回自身。
func (s *Sweeper) WithGrace(grace time.Duration) *Sweeper {
	if grace <= 0 {
		return s
	}
	cp := *s
	cp.grace = grace
	return &cp
}

// Run 执行一次清理。单个对象删除失败只计数，不中断整体。
func (s *Sweeper) Run(ctx context.Context) (report SweepReport, err error) {
	defer func() { metrics.ObserveStoreOperation("sweep", err) }()

	// 先取对象列表，再取引用集合：列表之后新插入的行只会让对象被视为“已引用”。
	objects, err := s.objects.ListObjects(ctx, s.namespace+"/", 0)
	if err != nil {
		s.logger.Error("list objects for sweep failed", slog.Any("error", err))
		return report, analysis.StoreReadFailed(err, "list objects under %s", s.namespace)
	}
	referenced, err := s.index.ObjectKeys(ctx)
	if err != nil {
		s.logger.Error("load referenced keys failed", slog.Any("error", err))
		return report, analysis.StoreReadFailed(err, "load referenced keys")
	}

	cutoff := s.now().Add(-s.grace)
	var deleted, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, obj := range objects {
		report.Scanned++
		if _, ok := referenced[obj.Key]; ok {
			report.Referenced++
			continue
		}
		if obj.LastModified.After(cutoff) {
			report.Young++
			continue
		}

		key := obj.Key
		g.Go(func() error {
			if err := s.objects.DeleteObject(gctx, key); err != nil {
				failed.Add(1)
				s.logger.Warn("delete orphan object failed", slog.String("object_key", key), slog.Any("error", err))
				return nil
			}
			deleted.Add(1)

			attrs := []any{slog.String("object_key", key)}
			if slot, _, perr := ParseObjectKey(key); perr == nil {
				attrs = append(attrs, slog.String("slot", slot.String()))
			}
			s.logger.Info("orphan object deleted", attrs...)
			return nil
		})
	}
	_ = g.Wait()

	report.Deleted = int(deleted.Load())
	report.Failed = int(failed.Load())
	s.logger.Info("orphan sweep finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("referenced", report.Referenced),
		slog.Int("young", report.Young),
		slog.Int("deleted", report.Deleted),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}
