// Package artifacts 负责分析结果的持久化：对象存储保存 JSON 文档，
// 关系库中的索引行记录槽位到对象键的映射，每个槽位至多一行。
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/datatypes"

	"cvinsight/internal/analysis"
	"cvinsight/internal/database"
	"cvinsight/internal/metrics"
	"cvinsight/internal/storage"
)

const contentTypeJSON = "application/json; charset=utf-8"

// ObjectStore 是对象存储需要提供的操作，由 storage.Client 实现。
type ObjectStore interface {
	PutObject(ctx context.Context, objectKey string, body []byte, contentType string, metadata map[string]string) error
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
	DeleteObject(ctx context.Context, objectKey string) error
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// SlotMeta 是列表接口中每个槽位的摘要，不包含分析正文。
type SlotMeta struct {
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
	ObjectKey string    `json:"object_key"`
}

// Listing 按 kind → provider 分组。
type Listing map[analysis.Kind]map[analysis.Provider]SlotMeta

// Options 是 Store 的可选参数。
type Options struct {
	Namespace string
	// OpTimeout 限制单次对象存储 / 关系库调用，<= 0 表示不限制。
	OpTimeout time.Duration
	Now       func() time.Time
}

// Store 实现分析结果的写入、读取与删除。
type Store struct {
	objects   ObjectStore
	index     *Index
	locker    Locker
	logger    *slog.Logger
	namespace string
	opTimeout time.Duration
	now       func() time.Time
}

func NewStore(objects ObjectStore, index *Index, locker Locker, logger *slog.Logger, opts Options) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		objects:   objects,
		index:     index,
		locker:    locker,
		logger:    logger,
		namespace: CleanNamespace(opts.Namespace),
		opTimeout: opts.OpTimeout,
		now:       now,
	}
}

// Namespace 返回对象键的命名空间。
func (s *Store) Namespace() string { return s.namespace }

func (s *Store) op(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Save 写入 artifact 并返回对象键：先清空槽位，再写对象，最后插入索引行。
// 插入失败时会删除刚写入的对象。成功后 artifact.CreatedAt 被设置为持久化时间。
func (s *Store) Save(ctx context.Context, userID uint, artifact *analysis.Artifact) (key string, err error) {
	defer func() { metrics.ObserveStoreOperation("save", err) }()

	if artifact == nil {
		return "", analysis.StoreWriteFailed(nil, "nil artifact")
	}
	if !artifact.AnalysisType.Valid() {
		return "", analysis.UnknownKind(string(artifact.AnalysisType))
	}
	if !artifact.AIProvider.Valid() {
		return "", analysis.UnknownProvider(string(artifact.AIProvider))
	}

	slot := artifact.SlotOf(userID)
	logger := s.logger.With(slog.String("slot", slot.String()))

	unlock, err := s.locker.Lock(ctx, slot.String())
	if err != nil {
		logger.Error("lock slot failed", slog.Any("error", err))
		return "", analysis.StoreWriteFailed(err, "lock slot %s", slot)
	}
	defer unlock()

	if _, err := s.evict(ctx, slot, logger); err != nil {
		return "", analysis.StoreWriteFailed(err, "evict slot %s", slot)
	}

	createdAt := s.now().UTC().Truncate(time.Second)
	key = ObjectKey(s.namespace, slot, createdAt)

	stored := *artifact
	stored.CreatedAt = createdAt
	body, err := Envelope{
		UserID:       userID,
		AnalysisType: slot.Kind,
		AIProvider:   slot.Provider,
		Timestamp:    createdAt,
		Analysis:     &stored,
	}.Encode()
	if err != nil {
		logger.Error("encode artifact failed", slog.Any("error", err))
		return "", analysis.StoreWriteFailed(err, "encode artifact")
	}

	putCtx, cancel := s.op(ctx)
	err = s.objects.PutObject(putCtx, key, body, contentTypeJSON, objectMetadata(userID, slot.Kind, slot.Provider))
	cancel()
	if err != nil {
		logger.Error("put artifact object failed", slog.String("object_key", key), slog.Any("error", err))
		return "", analysis.StoreWriteFailed(err, "put object %s", key)
	}

	rec := database.AnalysisRecord{
		UserID:           userID,
		AnalysisType:     string(slot.Kind),
		AnalysisProvider: string(slot.Provider),
		ObjectKey:        key,
		Score:            artifact.Score,
		Metadata: datatypes.JSONMap{
			"content_type": contentTypeJSON,
			"size":         len(body),
		},
		CreatedAt: createdAt,
	}
	insertCtx, cancel := s.op(ctx)
	err = s.index.Insert(insertCtx, &rec)
	cancel()
	if err != nil {
		logger.Error("insert index row failed", slog.String("object_key", key), slog.Any("error", err))

		delCtx, cancel := s.op(ctx)
		delErr := s.objects.DeleteObject(delCtx, key)
		cancel()
		if delErr != nil {
			logger.Error("compensating delete failed; object leaked",
				slog.String("object_key", key),
				slog.Any("error", delErr),
			)
		}
		return "", analysis.StoreWriteFailed(err, "insert index row for %s", key)
	}

	artifact.CreatedAt = createdAt
	logger.Info("artifact saved", slog.String("object_key", key), slog.Int("score", artifact.Score))
	return key, nil
}

// evict 删除槽位上的全部索引行及其对象。对象删除是尽力而为：
// 失败只记录日志，残留对象由 Sweeper 回收。
func (s *Store) evict(ctx context.Context, slot analysis.Slot, logger *slog.Logger) (int, error) {
	findCtx, cancel := s.op(ctx)
	rows, err := s.index.FindSlot(findCtx, slot)
	cancel()
	if err != nil {
		logger.Error("find slot rows failed", slog.Any("error", err))
		return 0, err
	}

	for _, row := range rows {
		if row.ObjectKey != "" {
			delCtx, cancel := s.op(ctx)
			err := s.objects.DeleteObject(delCtx, row.ObjectKey)
			cancel()
			if err != nil {
				logger.Warn("delete evicted object failed",
					slog.String("object_key", row.ObjectKey),
					slog.Any("error", err),
				)
			}
		}

		rowCtx, cancel := s.op(ctx)
		err := s.index.DeleteByID(rowCtx, row.ID)
		cancel()
		if err != nil {
			logger.Error("delete evicted row failed", slog.Uint64("row_id", uint64(row.ID)), slog.Any("error", err))
			return 0, err
		}
	}
	if len(rows) > 0 {
		logger.Info("slot evicted", slog.Int("rows", len(rows)))
	}
	return len(rows), nil
}

// GetLatestForSlot 返回槽位上的 artifact；槽位为空，或索引行指向的对象缺失时返回 (nil, nil)。
func (s *Store) GetLatestForSlot(ctx context.Context, slot analysis.Slot) (artifact *analysis.Artifact, err error) {
	defer func() { metrics.ObserveStoreOperation("get", err) }()

	logger := s.logger.With(slog.String("slot", slot.String()))

	findCtx, cancel := s.op(ctx)
	rows, err := s.index.FindSlot(findCtx, slot)
	cancel()
	if err != nil {
		logger.Error("find slot rows failed", slog.Any("error", err))
		return nil, analysis.StoreReadFailed(err, "find slot %s", slot)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		logger.Warn("slot has more than one index row", slog.Int("rows", len(rows)))
	}

	row := rows[0]
	if row.ObjectKey == "" {
		logger.Warn("index row has no object key", slog.Uint64("row_id", uint64(row.ID)))
		return nil, nil
	}

	getCtx, cancel := s.op(ctx)
	data, err := s.objects.GetObject(getCtx, row.ObjectKey)
	cancel()
	if errors.Is(err, storage.ErrObjectNotFound) {
		logger.Error("index row points to a missing object", slog.String("object_key", row.ObjectKey))
		return nil, nil
	}
	if err != nil {
		logger.Error("get artifact object failed", slog.String("object_key", row.ObjectKey), slog.Any("error", err))
		return nil, analysis.StoreReadFailed(err, "get object %s", row.ObjectKey)
	}

	env, err := DecodeEnvelope(data)
	if err != nil {
		logger.Error("decode artifact object failed", slog.String("object_key", row.ObjectKey), slog.Any("error", err))
		return nil, analysis.StoreReadFailed(err, "decode object %s", row.ObjectKey)
	}
	if env.Analysis.AnalysisType != slot.Kind || env.Analysis.AIProvider != slot.Provider {
		logger.Error("artifact identity does not match its slot",
			slog.String("object_key", row.ObjectKey),
			slog.String("analysis_type", string(env.Analysis.AnalysisType)),
			slog.String("ai_provider", string(env.Analysis.AIProvider)),
		)
	}
	return env.Analysis, nil
}

// ListByUser 按 kind → provider 分组返回用户的槽位摘要，不读取对象。
// 无法识别的行会被跳过并记录日志。
func (s *Store) ListByUser(ctx context.Context, userID uint) (listing Listing, err error) {
	defer func() { metrics.ObserveStoreOperation("list", err) }()

	listCtx, cancel := s.op(ctx)
	rows, err := s.index.ListByUser(listCtx, userID)
	cancel()
	if err != nil {
		s.logger.Error("list index rows failed", slog.Uint64("user_id", uint64(userID)), slog.Any("error", err))
		return nil, analysis.StoreReadFailed(err, "list analyses of user %d", userID)
	}

	listing = make(Listing)
	for _, row := range rows {
		kind := analysis.Kind(row.AnalysisType)
		provider := analysis.Provider(row.AnalysisProvider)
		if !kind.Valid() || !provider.Valid() || row.ObjectKey == "" {
			s.logger.Warn("skip unreadable index row",
				slog.Uint64("row_id", uint64(row.ID)),
				slog.String("analysis_type", row.AnalysisType),
				slog.String("ai_provider", row.AnalysisProvider),
			)
			continue
		}

		byProvider, ok := listing[kind]
		if !ok {
			byProvider = make(map[analysis.Provider]SlotMeta)
			listing[kind] = byProvider
		}
		if existing, ok := byProvider[provider]; ok && !row.CreatedAt.After(existing.CreatedAt) {
			continue
		}
		byProvider[provider] = SlotMeta{
			Score:     row.Score,
			CreatedAt: row.CreatedAt.UTC(),
			ObjectKey: row.ObjectKey,
		}
	}
	return listing, nil
}

// DeleteSlot 清空槽位，重复调用无副作用。
func (s *Store) DeleteSlot(ctx context.Context, slot analysis.Slot) (err error) {
	defer func() { metrics.ObserveStoreOperation("delete_slot", err) }()

	logger := s.logger.With(slog.String("slot", slot.String()))
	unlock, err := s.locker.Lock(ctx, slot.String())
	if err != nil {
		logger.Error("lock slot failed", slog.Any("error", err))
		return analysis.StoreWriteFailed(err, "lock slot %s", slot)
	}
	defer unlock()

	if _, err := s.evict(ctx, slot, logger); err != nil {
		return analysis.StoreWriteFailed(err, "delete slot %s", slot)
	}
	return nil
}

// DeleteUser 删除用户的全部分析：逐行先删对象再删行。
// 对象删除失败的行会保留，保证不会出现指向已删除对象的索引行。
func (s *Store) DeleteUser(ctx context.Context, userID uint) (removed int, err error) {
	defer func() { metrics.ObserveStoreOperation("delete_user", err) }()

	logger := s.logger.With(slog.Uint64("user_id", uint64(userID)))

	listCtx, cancel := s.op(ctx)
	rows, err := s.index.ListByUser(listCtx, userID)
	cancel()
	if err != nil {
		logger.Error("list index rows failed", slog.Any("error", err))
		return 0, analysis.StoreWriteFailed(err, "list analyses of user %d", userID)
	}

	var errs []error
	for _, row := range rows {
		slot := analysis.Slot{UserID: userID, Kind: analysis.Kind(row.AnalysisType), Provider: analysis.Provider(row.AnalysisProvider)}
		if err := s.deleteRow(ctx, slot, row, logger); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if len(errs) > 0 {
		return removed, analysis.StoreWriteFailed(errors.Join(errs...), "delete analyses of user %d", userID)
	}
	logger.Info("user analyses deleted", slog.Int("rows", removed))
	return removed, nil
}

func (s *Store) deleteRow(ctx context.Context, slot analysis.Slot, row database.AnalysisRecord, logger *slog.Logger) error {
	unlock, err := s.locker.Lock(ctx, slot.String())
	if err != nil {
		return fmt.Errorf("lock slot %s: %w", slot, err)
	}
	defer unlock()

	if row.ObjectKey != "" {
		delCtx, cancel := s.op(ctx)
		err := s.objects.DeleteObject(delCtx, row.ObjectKey)
		cancel()
		if err != nil {
			logger.Error("delete artifact object failed", slog.String("object_key", row.ObjectKey), slog.Any("error", err))
			return err
		}
	}

	rowCtx, cancel := s.op(ctx)
	err = s.index.DeleteByID(rowCtx, row.ID)
	cancel()
	if err != nil {
		logger.Error("delete index row failed", slog.Uint64("row_id", uint64(row.ID)), slog.Any("error", err))
		return err
	}
	return nil
}

// PurgeUser 在 DeleteUser 之后再清理该用户前缀下未被引用的残留对象。
func (s *Store) PurgeUser(ctx context.Context, userID uint) (int, error) {
	removed, err := s.DeleteUser(ctx, userID)
	if err != nil {
		return removed, err
	}

	prefix := UserPrefix(s.namespace, userID)
	purgeCtx, cancel := s.op(ctx)
	err = s.objects.DeletePrefix(purgeCtx, prefix)
	cancel()
	if err != nil {
		s.logger.Error("purge user prefix failed", slog.String("prefix", prefix), slog.Any("error", err))
		return removed, analysis.StoreWriteFailed(err, "purge prefix %s", prefix)
	}
	return removed, nil
}
