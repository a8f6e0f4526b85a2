package artifacts

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"cvinsight/internal/analysis"
	"cvinsight/internal/database"
)

// Index 是 cv_analyses 表的访问层。
type Index struct {
	db *gorm.DB
}

func NewIndex(db *gorm.DB) *Index {
	return &Index{db: db}
}

// FindSlot 返回槽位上的全部索引行，最新的在前。
func (i *Index) FindSlot(ctx context.Context, slot analysis.Slot) ([]database.AnalysisRecord, error) {
	var rows []database.AnalysisRecord
	err := i.db.WithContext(ctx).
		Where("user_id = ? AND analysis_type = ? AND analysis_provider = ?", slot.UserID, string(slot.Kind), string(slot.Provider)).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find slot %s: %w", slot, err)
	}
	return rows, nil
}

// ListByUser 返回用户的全部索引行。
func (i *Index) ListByUser(ctx context.Context, userID uint) ([]database.AnalysisRecord, error) {
	var rows []database.AnalysisRecord
	err := i.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list analyses of user %d: %w", userID, err)
	}
	return rows, nil
}

func (i *Index) Insert(ctx context.Context, rec *database.AnalysisRecord) error {
	if err := i.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert analysis row: %w", err)
	}
	return nil
}

func (i *Index) DeleteByID(ctx context.Context, id uint) error {
	if err := i.db.WithContext(ctx).Delete(&database.AnalysisRecord{}, id).Error; err != nil {
		return fmt.Errorf("delete analysis row %d: %w", id, err)
	}
	return nil
}

// ObjectKeys 返回所有被索引行引用的对象键。
func (i *Index) ObjectKeys(ctx context.Context) (map[string]struct{}, error) {
	var keys []string
	if err := i.db.WithContext(ctx).Model(&database.AnalysisRecord{}).Pluck("object_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("load referenced object keys: %w", err)
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out, nil
}
