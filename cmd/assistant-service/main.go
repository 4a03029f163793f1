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

	"github.com/carelens-ai/platform/pkg/analysis"
	"github.com/carelens-ai/platform/pkg/clarify"
	"github.com/carelens-ai/platform/pkg/common/config"
	"github.com/carelens-ai/platform/pkg/common/database"
	"github.com/carelens-ai/platform/pkg/common/kafka"
	"github.com/carelens-ai/platform/pkg/common/logger"
	"github.com/carelens-ai/platform/pkg/conditions"
	"github.com/carelens-ai/platform/pkg/gateway/middleware"
	"github.com/carelens-ai/platform/pkg/gateway/routes"
	"github.com/carelens-ai/platform/pkg/intent"
	"github.com/carelens-ai/platform/pkg/llm"
	"github.com/carelens-ai/platform/pkg/pipeline"
	"github.com/carelens-ai/platform/pkg/redact"
)

func main() {
	logger.Init("assistant-service")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}

	llmClient := llm.NewClient(cfg)
	if !llmClient.Online() {
		logger.Log.Warn("No LLM credentials configured, running in offline fallback mode")
	}

	catalog, err := conditions.LoadCatalog(cfg.ConditionCatalogPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load condition catalog")
	}
	mapper := conditions.NewMapper(catalog,
		conditions.WithAILookup(llmClient),
		conditions.WithCache(database.GetRedis(), cfg.ConditionCacheTTL),
	)

	clarifier := clarify.NewClarifier(mapper)
	gate := clarify.NewGate(clarifier, cfg.ConfidenceThreshold, !llmClient.Online())
	parser := intent.NewParser(llmClient, mapper)
	executor := analysis.NewExecutor(db)

	producer := kafka.NewProducer(cfg.ValidationEventTopic)
	defer producer.Close()

	redactRules, err := redact.LoadRules(cfg.RedactRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("Redaction rule file not usable, using built-in rules")
	}
	scrubber, err := redact.NewScrubber(redactRules)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to compile redaction rules")
	}

	service := pipeline.NewService(parser, clarifier, gate, executor,
		pipeline.WithPublisher(producer),
		pipeline.WithScrubber(scrubber),
	)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	routes.NewAssistantHandler(service).Register(apiRouter)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Assistant Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Assistant Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Assistant Service stopped")
}
