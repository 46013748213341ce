package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mangatint/worker/config"
	"mangatint/worker/engine"
	"mangatint/worker/kafka"
	"mangatint/worker/pipeline"
	"mangatint/worker/pool"
	"mangatint/worker/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("Colorize worker starting",
		zap.String("engine_url", cfg.EngineURL),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.Int("worker_count", cfg.WorkerCount),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect job store", zap.Error(err))
	}
	defer closeStore()

	eng := engine.NewHTTPEngine(cfg.EngineURL, logger)
	if err := eng.EnsureReady(ctx); err != nil {
		logger.Fatal("Colorization engine never became ready", zap.Error(err))
	}

	writer := pipeline.NewWriter(cfg.OutputRoot, cfg.LibraryRoot, logger)
	runner := pipeline.NewRunner(st, eng, writer, logger)
	runner.AddObserver(pipeline.NewLogObserver(logger))

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	if publisher, err := kafka.NewEventPublisher(brokers, cfg.KafkaEvents, logger); err != nil {
		logger.Warn("Event publishing disabled", zap.Error(err))
	} else {
		defer publisher.Close()
		runner.AddObserver(publisher)
	}

	consumer, err := kafka.NewConsumer(brokers, cfg.KafkaGroupID)
	if err != nil {
		logger.Fatal("Failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	workers := pool.NewWorkerPool(cfg.WorkerCount)

	handler := func(ctx context.Context, msg *kafka.JobMessage) error {
		logger.Info("Job message received",
			zap.String("job_id", msg.JobID),
			zap.String("trace_id", msg.TraceID),
		)
		workers.Submit(ctx, func(ctx context.Context) {
			if err := runner.Run(ctx, msg.JobID); err != nil {
				logger.Error("Job run failed",
					zap.String("job_id", msg.JobID),
					zap.Error(err),
				)
			}
		})
		return nil
	}

	logger.Info("Consuming jobs", zap.String("topic", cfg.KafkaTopic))
	for {
		if err := consumer.Consume(ctx, cfg.KafkaTopic, handler); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error("Consumer error", zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	logger.Info("Shutting down, waiting for running jobs")
	workers.Wait()
	logger.Info("Worker stopped")
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using postgres job store")
		return st, func() { st.Close() }, nil
	case cfg.RedisAddr != "":
		st, err := store.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using redis job store", zap.String("addr", cfg.RedisAddr))
		return st, func() { _ = st.Close() }, nil
	default:
		logger.Warn("No shared job store configured, using in-memory store")
		return store.NewMemoryStore(), func() {}, nil
	}
}
