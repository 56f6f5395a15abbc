package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"askdoc/internal/app"
	"askdoc/internal/config"
	"askdoc/internal/logger"
	"askdoc/internal/worker"
)

func main() {
	// Structured logging with correlation id support
	base := slog.NewJSONHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(logger.NewContextHandler(base)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Backing services
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer deps.DB.Close()

	// Wire the application
	var taskPub app.TaskPublisher
	if deps.NSQProducer != nil {
		taskPub = deps.NSQProducer
	}
	application, err := app.New(cfg, deps.DB, deps.VectorIndex, taskPub, slog.Default(), nil)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}

	// Ingest consumer (async path)
	if cfg.EnableIngestWorker {
		nsqCfg := nsq.NewConfig()
		consumer, err := nsq.NewConsumer(worker.TopicIngestTask, "backend", nsqCfg)
		if err != nil {
			return fmt.Errorf("failed to create NSQ consumer: %w", err)
		}
		consumer.AddHandler(application.IngestConsumer)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			return fmt.Errorf("failed to connect to NSQLookupd: %w", err)
		}
		defer consumer.Stop()
		slog.Info("NSQ ingest consumer connected", "topic", worker.TopicIngestTask)
	}

	return application.Run(ctx)
}
