package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/mindgraph-backend/internal/http/handlers"
	"github.com/yungbote/mindgraph-backend/internal/http/middleware"
	"github.com/yungbote/mindgraph-backend/internal/platform/logger"
	"github.com/yungbote/mindgraph-backend/internal/services"
)

type RouterConfig struct {
	Log             *logger.Logger
	GraphHandler    *handlers.GraphHandler
	PromptHandler   *handlers.PromptHandler
	HealthHandler   *handlers.HealthHandler
	IdempotencyGate *services.IdempotencyGate
	ServiceName     string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(middleware.RequestLog(cfg.Log))

	router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", middleware.WorkspaceHeader, middleware.IdempotencyKeyHeader},
	}))

	router.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	router.GET("/", cfg.HealthHandler.Root)

	api := router.Group("/api")
	api.Use(middleware.RequireWorkspace())
	api.Use(middleware.Idempotent(cfg.IdempotencyGate))
	{
		api.GET("/graph", cfg.GraphHandler.GetGraph)
		api.DELETE("/graph", cfg.GraphHandler.ClearGraph)

		api.POST("/nodes", cfg.GraphHandler.AddNode)
		api.GET("/nodes/:id", cfg.GraphHandler.GetNode)
		api.PUT("/nodes/:id", cfg.GraphHandler.UpdateNode)
		api.DELETE("/nodes/:id", cfg.GraphHandler.DeleteNode)
		api.POST("/nodes/:id/expand", cfg.GraphHandler.ExpandNode)
		api.POST("/expand", cfg.GraphHandler.ExpandNodes)

		api.POST("/edges", cfg.GraphHandler.AddEdge)
		api.DELETE("/edges", cfg.GraphHandler.DeleteEdge)

		api.GET("/prompts/:key", cfg.PromptHandler.GetPrompt)
		api.PUT("/prompts/:key", cfg.PromptHandler.UpdatePrompt)
		api.DELETE("/prompts/:key", cfg.PromptHandler.ResetPrompt)
	}

	return router
}
