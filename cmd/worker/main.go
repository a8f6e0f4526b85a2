package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"

	"cvinsight/internal/bootstrap"
	"cvinsight/internal/config"
	"cvinsight/internal/metrics"
	"cvinsight/internal/tasks"
	"cvinsight/internal/worker"
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

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr()}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Logger:      newAsynqLogger(logger),
	})

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeSweepOrphans, worker.NewSweepTaskHandler(infra.NewSweeper(cfg, logger), logger))
	mux.Handle(tasks.TypePurgeUser, worker.NewPurgeUserTaskHandler(infra.Store, logger))

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: newAsynqLogger(logger)})
	if interval := strings.TrimSpace(cfg.Sweep.Interval); interval != "" {
		task, err := tasks.NewSweepOrphansTask(0, "")
		if err != nil {
			log.Fatalf("build sweep task: %v", err)
		}
		entryID, err := scheduler.Register(interval, task)
		if err != nil {
			log.Fatalf("register sweep schedule %q: %v", interval, err)
		}
		logger.Info("orphan sweep scheduled", slog.String("interval", interval), slog.String("entry_id", entryID))
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer scheduler.Shutdown()

	if err := server.Start(mux); err != nil {
		log.Fatalf("start worker server: %v", err)
	}
	logger.Info("worker service started", slog.String("redis_addr", cfg.Redis.Addr()))

	<-ctx.Done()
	logger.Info("shutting down worker")
	server.Shutdown()
}
