// Package bootstrap 组装各个进程共用的基础设施：日志、数据库、Redis、对象存储与分析结果存储。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvinsight/internal/artifacts"
	"cvinsight/internal/config"
	"cvinsight/internal/database"
	"cvinsight/internal/storage"
)

// NewLogger 按 LOG_FORMAT 选择 slog 处理器。
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

// Infra 持有已连接的外部依赖。
type Infra struct {
	DB      *gorm.DB
	Redis   *redis.Client
	Objects *storage.Client
	Index   *artifacts.Index
	Store   *artifacts.Store
}

// Open 依次连接 PostgreSQL、Redis 与 MinIO，执行迁移并构建 Store。
// Store 使用基于 Redis 的槽位锁，保证多个 API / worker 实例之间的互斥。
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infra, error) {
	db, err := database.InitDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	logger.Info("database connection ready", slog.String("host", cfg.Database.Host), slog.String("db", cfg.Database.Name))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis connection ready", slog.String("addr", cfg.Redis.Addr()))

	objects, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("init storage client: %w", err)
	}
	logger.Info("storage client ready", slog.String("bucket", cfg.MinIO.Bucket), slog.String("namespace", cfg.MinIO.Namespace))

	index := artifacts.NewIndex(db)
	locker := artifacts.NewRedisLocker(redisClient, cfg.Store.SlotLockTTL(), logger)
	store := artifacts.NewStore(objects, index, locker, logger, artifacts.Options{
		Namespace: cfg.MinIO.Namespace,
		OpTimeout: cfg.Store.Timeout(),
	})

	return &Infra{
		DB:      db,
		Redis:   redisClient,
		Objects: objects,
		Index:   index,
		Store:   store,
	}, nil
}

// NewSweeper 使用配置中的宽限期构建孤儿对象清理器，命名空间与 Store 保持一致。
func (i *Infra) NewSweeper(cfg *config.Config, logger *slog.Logger) *artifacts.Sweeper {
	return artifacts.NewSweeper(i.Objects, i.Index, i.Store.Namespace(), cfg.Sweep.Grace(), logger)
}

// Close 释放连接。
func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if sqlDB, err := i.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
