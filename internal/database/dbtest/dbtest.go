// Package dbtest 为测试提供迁移完毕的 SQLite 内存库。
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cvinsight/internal/database"
)

// Open 打开以测试名命名的共享内存库，执行迁移并写入给定 ID 的用户。
func Open(t testing.TB, userIDs ...uint) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sqlite: %v", err)
	}
	// 共享缓存下多连接会触发 SQLITE_LOCKED。
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, id := range userIDs {
		if err := db.Create(&database.User{Model: gorm.Model{ID: id}, Username: fmt.Sprintf("user%d", id)}).Error; err != nil {
			t.Fatalf("seed user %d: %v", id, err)
		}
	}
	return db
}
