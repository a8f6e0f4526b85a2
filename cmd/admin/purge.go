package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"cvinsight/internal/bootstrap"
	"cvinsight/internal/config"
	"cvinsight/internal/tasks"
)

var errMissingUser = errors.New("missing required flag: --user")

var purgeUserCmd = &cobra.Command{
	Use:   "purge-user",
	Short: "Delete every stored analysis of a user right now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, err := cmd.Flags().GetUint("user")
		if err != nil || userID == 0 {
			return errMissingUser
		}
		return withInfra(cmd, func(ctx context.Context, _ *config.Config, infra *bootstrap.Infra, logger *slog.Logger) error {
			removed, err := infra.Store.PurgeUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("purge user %d: %w", userID, err)
			}
			logger.Info("user analyses purged", slog.Uint64("user_id", uint64(userID)), slog.Int("removed", removed))
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d analyses of user %d\n", removed, userID)
			return nil
		})
	},
}

var enqueuePurgeCmd = &cobra.Command{
	Use:   "enqueue-purge",
	Short: "Queue an asynchronous purge of a user's analyses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, err := cmd.Flags().GetUint("user")
		if err != nil || userID == 0 {
			return errMissingUser
		}
		cfg, _, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		client := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
		defer client.Close()

		task, err := tasks.NewPurgeUserTask(userID, uuid.NewString())
		if err != nil {
			return fmt.Errorf("build purge task: %w", err)
		}
		info, err := client.EnqueueContext(cmd.Context(), task)
		if err != nil {
			return fmt.Errorf("enqueue purge task: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s task %s on %s\n", info.Type, info.ID, info.Queue)
		return nil
	},
}

func init() {
	purgeUserCmd.Flags().Uint("user", 0, "user id (required)")
	enqueuePurgeCmd.Flags().Uint("user", 0, "user id (required)")
	rootCmd.AddCommand(purgeUserCmd, enqueuePurgeCmd)
}
