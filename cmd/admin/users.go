package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"cvinsight/internal/auth"
	"cvinsight/internal/bootstrap"
	"cvinsight/internal/config"
	"cvinsight/internal/database"
)

// seed-user 在本地环境中补齐外部用户表的投影行，便于满足外键约束。
var seedUserCmd = &cobra.Command{
	Use:   "seed-user",
	Short: "Insert a user row so analyses can reference it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, err := cmd.Flags().GetUint("user")
		if err != nil || userID == 0 {
			return errMissingUser
		}
		username, _ := cmd.Flags().GetString("username")
		username = strings.TrimSpace(username)
		if username == "" {
			username = fmt.Sprintf("user_%d", userID)
		}
		return withInfra(cmd, func(ctx context.Context, _ *config.Config, infra *bootstrap.Infra, logger *slog.Logger) error {
			var existing database.User
			switch err := infra.DB.WithContext(ctx).First(&existing, userID).Error; {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "user %d already exists (%s)\n", userID, existing.Username)
				return nil
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return fmt.Errorf("query user: %w", err)
			}

			user := database.User{Model: gorm.Model{ID: userID}, Username: username}
			if err := infra.DB.WithContext(ctx).Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			logger.Info("user seeded", slog.Uint64("user_id", uint64(userID)), slog.String("username", username))
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", userID, username)
			return nil
		})
	},
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Sign an access token for a user (requires JWT_PRIVATE_KEY_PATH)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, err := cmd.Flags().GetUint("user")
		if err != nil || userID == 0 {
			return errMissingUser
		}
		cfg, _, err := loadEnv(cmd)
		if err != nil {
			return err
		}
		if cfg.Auth.JWTPrivateKeyPath == "" {
			return errors.New("JWT_PRIVATE_KEY_PATH is required")
		}
		privateKeyPEM, err := os.ReadFile(cfg.Auth.JWTPrivateKeyPath)
		if err != nil {
			return fmt.Errorf("read jwt private key: %w", err)
		}
		signer, err := auth.NewSigner(privateKeyPEM, cfg.Auth.AccessTokenTTL())
		if err != nil {
			return err
		}
		token, err := signer.IssueAccessToken(userID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	seedUserCmd.Flags().Uint("user", 0, "user id (required)")
	seedUserCmd.Flags().String("username", "", "username, defaults to user_<id>")
	issueTokenCmd.Flags().Uint("user", 0, "user id (required)")
	rootCmd.AddCommand(seedUserCmd, issueTokenCmd)
}
