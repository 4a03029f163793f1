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
	"github.com/carelens-ai/platform/pkg/gateway/auth"
	"github.com/carelens-ai/platform/pkg/gateway/middleware"
	"github.com/carelens-ai/platform/pkg/gateway/routes"
	"github.com/carelens-ai/platform/pkg/identity"
	"github.com/carelens-ai/platform/pkg/ingestion"
	"github.com/carelens-ai/platform/pkg/intent"
	"github.com/carelens-ai/platform/pkg/llm"
	"github.com/carelens-ai/platform/pkg/pipeline"
	"github.com/carelens-ai/platform/pkg/redact"
	"github.com/carelens-ai/platform/pkg/validation"
)

func main() {
	logger.Init("api-gateway")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}

	identityRepo := identity.NewRepository(db)
	if err := identityRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate identity tables")
	}
	identityService := identity.NewService(identityRepo)

	tokenSigner, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure JWT signing")
	}

	// Assistant pipeline.
	llmClient := llm.NewClient(cfg)
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

	assistant := pipeline.NewService(parser, clarifier, gate, executor,
		pipeline.WithPublisher(producer),
		pipeline.WithScrubber(scrubber),
	)

	// Validation engine.
	validationRepo := validation.NewRepository(db)
	engine := validation.NewEngine(validationRepo, validation.WithPublisher(producer))

	// Vitals ingestion.
	ingestRepo := ingestion.NewRepository(db)
	if err := ingestRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate ingestion tables")
	}
	ingestService := ingestion.NewService(
		ingestion.NewValidator(cfg.IngestAllowedSources),
		ingestRepo,
		cfg.IngestStatusTTL,
		ingestion.WithPublisher(producer),
		ingestion.WithRevalidation(func(ctx context.Context, patientID string) error {
			_, err := engine.ValidatePatient(ctx, patientID)
			return err
		}),
	)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.CORS)
	router.Use(middleware.RateLimit(50, 100))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	routes.NewAuthHandler(identityService, tokenSigner).Register(apiRouter)

	protected := apiRouter.NewRoute().Subrouter()
	protected.Use(middleware.Authenticate(tokenSigner))
	protected.Use(middleware.ClinicScope)
	routes.NewAssistantHandler(assistant).Register(protected)
	routes.NewValidationHandler(engine, validationRepo).Register(protected)
	routes.NewOverviewHandler(db).Register(protected)
	ingestion.NewHTTPHandler(ingestService, cfg.MaxRequestBody).Register(protected)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("API Gateway started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down API Gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("API Gateway stopped")
}
