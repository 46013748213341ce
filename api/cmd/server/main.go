package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mangatint/api/cache"
	"mangatint/api/config"
	"mangatint/api/handlers"
	"mangatint/api/kafka"
	"mangatint/api/middleware"
	"mangatint/api/service"
	"mangatint/worker/engine"
	"mangatint/worker/library"
	"mangatint/worker/pipeline"
	"mangatint/worker/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()
	logger.Info("API Service starting",
		zap.String("port", cfg.Port),
		zap.Bool("queue_mode", cfg.QueueMode),
	)

	if cfg.QueueMode && cfg.DatabaseURL == "" && cfg.RedisAddr == "" {
		logger.Fatal("Queue mode requires a shared job store, set DATABASE_URL or REDIS_ADDR")
	}

	ctx := context.Background()

	st, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect job store", zap.Error(err))
	}
	defer closeStore()

	// Redis fronts the postgres store for status polls. When redis is the
	// store itself there is nothing to cache.
	var statusCache *cache.StatusCache
	if cfg.DatabaseURL != "" && cfg.RedisAddr != "" {
		statusCache, err = cache.Connect(cfg.RedisAddr)
		if err != nil {
			logger.Warn("Status cache unavailable", zap.Error(err))
		} else {
			defer statusCache.Close()
			logger.Info("Status cache enabled", zap.String("addr", cfg.RedisAddr))
		}
	}

	var batchSvc *service.BatchService
	if cfg.QueueMode {
		producer, err := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
		if err != nil {
			logger.Fatal("Failed to create producer", zap.Error(err))
		}
		defer producer.Close()
		batchSvc = service.NewQueueBatchService(st, producer, cfg.KafkaTopic, statusCache)
	} else {
		eng := engine.NewHTTPEngine(cfg.EngineURL, logger)
		writer := pipeline.NewWriter(cfg.OutputRoot, cfg.LibraryRoot, logger)
		runner := pipeline.NewRunner(st, eng, writer, logger)
		runner.AddObserver(pipeline.NewLogObserver(logger))
		batchSvc = service.NewBatchService(st, runner, statusCache)

		go func() {
			readyCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			if err := eng.EnsureReady(readyCtx); err != nil {
				logger.Warn("Colorization engine not ready, jobs will fail until it is", zap.Error(err))
			}
		}()
	}

	lib := library.New(cfg.LibraryRoot, logger)
	progress, err := library.OpenProgress(cfg.ProgressDB)
	if err != nil {
		logger.Fatal("Failed to open reading database", zap.Error(err))
	}
	defer progress.Close()
	librarySvc := service.NewLibraryService(lib, progress)

	batchHandler := handlers.NewBatchHandler(batchSvc, cfg.UploadDir, cfg.MaxFileSize, logger)
	libraryHandler := handlers.NewLibraryHandler(librarySvc, []string{cfg.LibraryRoot, cfg.OutputRoot}, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/batch", batchHandler.Submit)
	mux.HandleFunc("GET /api/batch", batchHandler.List)
	mux.HandleFunc("POST /api/batch/upload", batchHandler.Upload)
	mux.HandleFunc("GET /api/batch/{id}", batchHandler.Status)
	mux.HandleFunc("DELETE /api/batch/{id}", batchHandler.Delete)
	mux.HandleFunc("GET /api/batch/{id}/results", batchHandler.Results)
	mux.HandleFunc("POST /api/batch/{id}/start", batchHandler.Start)
	mux.HandleFunc("POST /api/batch/{id}/cancel", batchHandler.Cancel)

	mux.HandleFunc("GET /api/library/collections", libraryHandler.Collections)
	mux.HandleFunc("GET /api/library/collections/{collection}/chapters", libraryHandler.Chapters)
	mux.HandleFunc("GET /api/library/collections/{collection}/chapters/{chapter}/pages", libraryHandler.Pages)
	mux.HandleFunc("GET /api/library/page", libraryHandler.Page)
	mux.HandleFunc("POST /api/library/progress", libraryHandler.SaveProgress)
	mux.HandleFunc("GET /api/library/progress/{collection}", libraryHandler.Progress)
	mux.HandleFunc("POST /api/library/bookmark", libraryHandler.ToggleBookmark)
	mux.HandleFunc("GET /api/library/bookmarks/{collection}", libraryHandler.Bookmarks)
	mux.HandleFunc("GET /api/library/history", libraryHandler.History)
	mux.HandleFunc("GET /api/library/stats", libraryHandler.Stats)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := middleware.TraceID(middleware.Recovery(logger)(middleware.Logging(logger)(mux)))

	logger.Info("Server started", zap.String("address", ":"+cfg.Port))
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
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
