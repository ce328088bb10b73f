package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/convoforge-ai/platform/pkg/batch"
	"github.com/convoforge-ai/platform/pkg/common/config"
	"github.com/convoforge-ai/platform/pkg/common/database"
	"github.com/convoforge-ai/platform/pkg/common/kafka"
	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/conversation"
	"github.com/convoforge-ai/platform/pkg/generation"
	"github.com/convoforge-ai/platform/pkg/observability/metrics"
	"github.com/convoforge-ai/platform/pkg/scaffolding"
	"github.com/convoforge-ai/platform/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	batchRepo := batch.NewRepository(db)
	if err := batchRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate batch tables")
	}
	convRepo := conversation.NewRepository(db)
	if err := convRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate conversation tables")
	}
	redisClient := database.GetRedis()
	scaffoldRepo := scaffolding.NewRepository(db, redisClient)
	if err := scaffoldRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate scaffolding tables")
	}

	files, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to initialize file store")
	}

	producer := kafka.NewProducer(cfg.EventsTopic)
	defer producer.Close()

	conversations := conversation.NewService(convRepo, files, redisClient, cfg.StatusCacheTTL)

	selector := scaffolding.NewSelector(scaffoldRepo)
	client := generation.NewClient(cfg)
	processor := generation.NewProcessor(selector, scaffoldRepo, client, conversations)

	scheduler := batch.NewScheduler(batchRepo, processor, producer, cfg.BatchMaxWorkers, cfg.ItemTimeout)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	batch.NewHTTPHandler(scheduler, cfg.MaxRequestBody).Register(api)
	conversation.NewHTTPHandler(conversations).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, "8080"),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.ForService("generation-service").WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": "8080",
		}).Info("Generation Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Generation Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Generation Service stopped")
}
