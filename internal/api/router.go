package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/stitchrag/internal/api/handler"
	"github.com/timmy/stitchrag/internal/api/middleware"
	"github.com/timmy/stitchrag/internal/logger"
)

// Deps are the services the HTTP API is built on. Pipeline and Runs may be
// nil.
type Deps struct {
	Retriever   handler.Retriever
	Index       handler.CollectionCounter
	Pipeline    handler.PipelineRunner
	Runs        handler.RunLister
	Collection  string
	TextWeight  float64
	ImageWeight float64
	CORS        middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, mode string, log *logger.Logger) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	if log == nil {
		log = logger.GetDefault()
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler(deps.Index, deps.Collection)
	ragHandler := handler.NewRAGHandler(deps.Retriever, deps.TextWeight, deps.ImageWeight)
	adminHandler := handler.NewAdminHandler(deps.Pipeline, deps.Index, deps.Runs, deps.Collection)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	v1 := r.Group("/api/v1")
	{
		// Retrieval
		v1.POST("/rag", ragHandler.Retrieve)
		v1.POST("/rerank", ragHandler.Rerank)

		// Inspection
		v1.GET("/stats", adminHandler.GetStats)
		v1.GET("/runs", adminHandler.ListRuns)

		// Pipeline control
		v1.POST("/admin/pipeline", adminHandler.TriggerPipeline)
		v1.GET("/admin/pipeline/status", adminHandler.GetPipelineStatus)
	}

	return r
}
