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

	"github.com/convoforge-ai/platform/pkg/common/config"
	"github.com/convoforge-ai/platform/pkg/common/database"
	"github.com/convoforge-ai/platform/pkg/common/kafka"
	"github.com/convoforge-ai/platform/pkg/common/logger"
	"github.com/convoforge-ai/platform/pkg/conversation"
	"github.com/convoforge-ai/platform/pkg/enrichment"
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

	convRepo := conversation.NewRepository(db)
	if err := convRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate conversation tables")
	}

	files, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to initialize file store")
	}

	profile, err := scaffolding.LoadProfile(cfg.ProfilePath)
	if err != nil {
		logger.Log.WithError(err).Warn("falling back to default consultant profile")
	}

	producer := kafka.NewProducer(cfg.EventsTopic)
	defer producer.Close()

	var dlq enrichment.EventPublisher
	if cfg.PipelineDLQTopic != "" {
		dlqProducer := kafka.NewProducer(cfg.PipelineDLQTopic)
		defer dlqProducer.Close()
		dlq = dlqProducer
	}

	redisClient := database.GetRedis()
	conversations := conversation.NewService(convRepo, files, redisClient, cfg.StatusCacheTTL)

	// The pipeline writes through the service so every status change
	// invalidates the status cache.
	orchestrator := enrichment.NewOrchestrator(
		conversations,
		files,
		enrichment.NewValidator(),
		enrichment.NewEnricher(profile),
		enrichment.NewNormalizer(int64(cfg.MinEnrichedBytes)),
		producer,
		dlq,
	)

	// Completed batch items flow straight into the pipeline.
	consumer := kafka.NewConsumer(cfg.EventsTopic, "enrichment-service")
	defer consumer.Close()

	consumeCtx, consumeCancel := context.WithCancel(context.Background())
	defer consumeCancel()

	listener := enrichment.NewListener(orchestrator)
	go func() {
		if err := consumer.Consume(consumeCtx, listener.HandleEvent); err != nil && err != context.Canceled {
			logger.Log.WithError(err).Error("consumer stopped")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	// Enriched file downloads resolved by the paths DownloadURL hands
	// out.
	router.PathPrefix("/files/").Handler(storage.DownloadHandler(files)).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	enrichment.NewHTTPHandler(orchestrator, cfg.BulkMaxConversations).Register(api)
	conversation.NewHTTPHandler(conversations).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, "8081"),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.ForService("enrichment-service").WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": "8081",
		}).Info("Enrichment Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Enrichment Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Enrichment Service stopped")
}
