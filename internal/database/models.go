package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 是外部用户实体的最小投影，仅用于外键与级联删除。
type User struct {
	gorm.Model
	Username string           `gorm:"uniqueIndex;size:64"`
	Analyses []AnalysisRecord `gorm:"constraint:OnDelete:CASCADE"`
}

// AnalysisRecord 是分析结果的索引行，指向对象存储中的 JSON 文档。
// (user_id, analysis_type, analysis_provider) 上的唯一索引保证每个槽位至多一行。
type AnalysisRecord struct {
	ID               uint   `gorm:"primaryKey"`
	UserID           uint   `gorm:"not null;index;uniqueIndex:idx_analysis_slot,priority:1"`
	AnalysisType     string `gorm:"size:64;not null;uniqueIndex:idx_analysis_slot,priority:2"`
	AnalysisProvider string `gorm:"column:analysis_provider;size:16;not null;uniqueIndex:idx_analysis_slot,priority:3"`
	ObjectKey        string `gorm:"size:512;not null"`
	Score            int    `gorm:"not null"`
	Metadata         datatypes.JSONMap
	CreatedAt        time.Time `gorm:"not null"`
}

func (AnalysisRecord) TableName() string {
	return "cv_analyses"
}
