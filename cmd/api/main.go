package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"cvinsight/internal/api"
	"cvinsight/internal/auth"
	"cvinsight/internal/bootstrap"
	"cvinsight/internal/config"
	"cvinsight/internal/llm"
	"cvinsight/internal/pipeline"
	"cvinsight/internal/scan"
)

func main() {
	cfg := config.MustLoad()

	logger := bootstrap.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error("close infrastructure failed", slog.Any("error", err))
		}
	}()

	registry, err := llm.FromConfig(ctx, cfg.Providers, logger)
	if err != nil {
		log.Fatalf("init providers: %v", err)
	}
	if len(registry.Providers()) == 0 {
		logger.Warn("no provider configured, analyses will fail with provider_unavailable")
	}

	if cfg.Auth.JWTPublicKeyPath == "" {
		log.Fatal("JWT_PUBLIC_KEY_PATH is required")
	}
	publicKeyPEM, err := os.ReadFile(cfg.Auth.JWTPublicKeyPath)
	if err != nil {
		log.Fatalf("read jwt public key: %v", err)
	}
	verifier, err := auth.NewVerifier(publicKeyPEM)
	if err != nil {
		log.Fatalf("init token verifier: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error("close asynq client failed", slog.Any("error", err))
		}
	}()

	analyzer := pipeline.New(pipeline.Deps{
		Adapters: registry,
		Store:    infra.Store,
		Scanner:  scan.New(cfg.Scan.ClamdAddr),
		Notifier: pipeline.NewRedisNotifier(infra.Redis),
		Logger:   logger,
	})

	router := api.NewRouter(logger, cfg.API.MetricsSecret)
	handler := api.NewAnalysisHandler(analyzer, infra.Store, asynqClient, registry, cfg.API.MaxUploadBytes)
	api.RegisterRoutes(router, handler, verifier)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("api listening",
		slog.String("addr", address),
		slog.Any("providers", registry.Providers()),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to start api server: %v", err)
	}
}
