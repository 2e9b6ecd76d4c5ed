package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"keyforge/analytics"
	"keyforge/cache"
	"keyforge/config"
	"keyforge/database"
	"keyforge/handlers"
	"keyforge/meshy"
	"keyforge/middleware"
	"keyforge/mirror"
	"keyforge/poll"
	"keyforge/repository"
	"keyforge/service"
	"keyforge/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}

	redisCache, err := database.ConnectCache(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisCache.Close()

	store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.AssetsBucket)
	if err != nil {
		logger.Fatal("Failed to initialize asset storage", zap.Error(err))
	}

	var events analytics.Producer = analytics.Nop{}
	if cfg.KafkaBrokers != "" {
		producer, err := analytics.NewProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.EventsTopic)
		if err != nil {
			logger.Warn("Analytics producer unavailable, events disabled", zap.Error(err))
		} else {
			events = producer
			defer producer.Close()
		}
	}

	taskRepo := repository.NewPostgresTaskRepo(db)
	designRepo := repository.NewPostgresDesignRepo(db)
	provider := meshy.NewClient(cfg.MeshyBaseURL, cfg.MeshyAPIKey, cfg.MeshyTimeout, logger)
	assetMirror := mirror.New(store, cfg.MeshyTimeout, logger)
	snapshots := cache.NewSnapshotCache(redisCache)

	taskService := service.NewTaskService(taskRepo, designRepo, provider, assetMirror, snapshots, events, logger)

	poller := poll.New(taskRepo, taskService, cfg.PollInterval, cfg.PollWorkers, logger)
	go poller.Run(ctx)

	taskHandler := handlers.NewTaskHandler(taskService, logger)

	auth := middleware.Auth(cfg.JWTSecret)
	mux := http.NewServeMux()
	mux.Handle("/tasks", auth(http.HandlerFunc(taskHandler.Create)))
	mux.Handle("/tasks/", auth(http.HandlerFunc(taskHandler.Status)))
	mux.HandleFunc("/webhook", taskHandler.Webhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler := middleware.TraceID(middleware.Logging(logger)(middleware.Recovery(logger)(mux)))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("Server started", zap.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
