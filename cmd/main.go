package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/mindgraph-backend/internal/clients/redis"
	"github.com/yungbote/mindgraph-backend/internal/data/graph"
	"github.com/yungbote/mindgraph-backend/internal/http/handlers"
	"github.com/yungbote/mindgraph-backend/internal/observability"
	"github.com/yungbote/mindgraph-backend/internal/platform/envutil"
	"github.com/yungbote/mindgraph-backend/internal/platform/genai"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
	"github.com/yungbote/mindgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/mindgraph-backend/internal/server"
	"github.com/yungbote/mindgraph-backend/internal/services"
)

func main() {
	// Logger
	logMode := envutil.Str("LOG_MODE", "development")
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Tracing
	shutdownTracing := observability.InitTracing(ctx, log, observability.OtelConfig{
		ServiceName: "mindgraph-backend",
		Environment: envutil.Str("ENVIRONMENT", "development"),
	})

	// Neo4j
	log.Info("Connecting to Neo4j...")
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init Neo4j client", "error", err)
		os.Exit(1)
	}
	startupAttempts := envutil.Int("NEO4J_STARTUP_ATTEMPTS", 10)
	startupDelay := envutil.Duration("NEO4J_STARTUP_DELAY", 3*time.Second)
	if err := neo4jClient.VerifyConnectivityWithRetry(ctx, startupAttempts, startupDelay); err != nil {
		log.Error("Could not connect to Neo4j", "error", err)
		os.Exit(1)
	}
	dimensions := envutil.Int("VECTOR_DIMENSIONS", 768)
	if err := neo4jClient.EnsureVectorIndex(ctx, dimensions); err != nil {
		log.Error("Could not provision vector index", "error", err)
		os.Exit(1)
	}

	// Redis
	redisStore, err := redis.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init Redis client", "error", err)
		os.Exit(1)
	}

	// GenAI
	genaiClient, err := genai.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init GenAI client", "error", err)
		os.Exit(1)
	}

	// Repos
	conceptRepo := graph.NewConceptRepo(neo4jClient, log)

	// Services
	log.Info("Setting up services...")
	retryStore := services.NewRetryableStore(log,
		envutil.Int("STORE_RETRIES", 3),
		envutil.Duration("STORE_RETRY_BASE_DELAY", 500*time.Millisecond))
	embeddingService := services.NewEmbeddingService(log, genaiClient)
	promptService := services.NewPromptService(log, envutil.Str("PROMPT_STORE_PATH", "data/prompts.yaml"))
	graphService := services.NewGraphService(log, conceptRepo, retryStore, embeddingService, genaiClient, promptService, services.GraphConfig{
		SimilarityThreshold:   envutil.Float("SIMILARITY_THRESHOLD", 0.85),
		MaxSemanticCandidates: envutil.Int("MAX_SEMANTIC_CANDIDATES", 5),
	})
	idempotencyGate := services.NewIdempotencyGate(log, redisStore,
		envutil.Duration("IDEMPOTENCY_PENDING_TTL", 2*time.Minute),
		envutil.Duration("IDEMPOTENCY_COMPLETE_TTL", 24*time.Hour))

	// Router
	router := server.NewRouter(server.RouterConfig{
		Log:             log,
		GraphHandler:    handlers.NewGraphHandler(log, graphService),
		PromptHandler:   handlers.NewPromptHandler(log, promptService),
		HealthHandler:   handlers.NewHealthHandler(),
		IdempotencyGate: idempotencyGate,
		ServiceName:     "mindgraph-backend",
	})

	addr := ":" + envutil.Str("PORT", "8080")
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown error", "error", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("Tracing shutdown error", "error", err)
		}
	}
	if err := neo4jClient.Close(shutdownCtx); err != nil {
		log.Warn("Neo4j close error", "error", err)
	}
	log.Info("Shutdown complete")
}
