package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"cvinsight/internal/bootstrap"
	"cvinsight/internal/config"
)

const app = "cvinsight-admin"

var rootCmd = &cobra.Command{
	Use:          app,
	Short:        "Maintenance commands for stored CV analyses",
	SilenceUsage: true,
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
}

// loadEnv 读取配置并按 --json 覆盖日志格式。
func loadEnv(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		cfg.Log.Format = "json"
	}
	return cfg, bootstrap.NewLogger(cfg.Log, os.Stderr), nil
}

// withInfra 连接基础设施后执行 fn，结束时释放连接。
func withInfra(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, infra *bootstrap.Infra, logger *slog.Logger) error) error {
	cfg, logger, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	infra, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error("close infrastructure failed", slog.Any("error", err))
		}
	}()
	return fn(ctx, cfg, infra, logger)
}
