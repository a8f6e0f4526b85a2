package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"cvinsight/internal/bootstrap"
	"cvinsight/internal/config"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete stored objects that no index row references",
	RunE: func(cmd *cobra.Command, _ []string) error {
		grace, err := cmd.Flags().GetDuration("grace")
		if err != nil {
			return err
		}
		return withInfra(cmd, func(ctx context.Context, cfg *config.Config, infra *bootstrap.Infra, logger *slog.Logger) error {
			report, err := infra.NewSweeper(cfg, logger).WithGrace(grace).Run(ctx)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		})
	},
}

func init() {
	sweepCmd.Flags().Duration("grace", 0, "override SWEEP_GRACE_SECONDS, e.g. 30m")
	rootCmd.AddCommand(sweepCmd)
}
