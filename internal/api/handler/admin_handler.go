package handler

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/logger"
	"github.com/timmy/stitchrag/internal/service"
)

// PipelineRunner runs pipeline stages.
type PipelineRunner interface {
	Run(ctx context.Context, stages []service.Stage) error
}

// CollectionCounter reports the size of a collection.
type CollectionCounter interface {
	CollectionCount(ctx context.Context, name string) (int, error)
}

// RunLister lists recorded stage runs.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.StageRun, error)
	ListByRunID(ctx context.Context, runID string) ([]domain.StageRun, error)
}

// AdminHandler handles pipeline control and inspection endpoints.
type AdminHandler struct {
	pipeline   PipelineRunner
	index      CollectionCounter
	runs       RunLister
	collection string

	// Pipeline run state
	mu            sync.RWMutex
	isRunning     bool
	lastStages    []service.Stage
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler. pipeline and runs may be nil,
// in which case their endpoints answer 503.
func NewAdminHandler(pipeline PipelineRunner, index CollectionCounter, runs RunLister, collection string) *AdminHandler {
	return &AdminHandler{
		pipeline:   pipeline,
		index:      index,
		runs:       runs,
		collection: collection,
	}
}

// PipelineRequest represents the pipeline trigger request.
type PipelineRequest struct {
	Stages []string `json:"stages" binding:"required,min=1"`
}

// PipelineStatusResponse represents the pipeline status.
type PipelineStatusResponse struct {
	IsRunning     bool            `json:"is_running"`
	LastStages    []service.Stage `json:"last_stages,omitempty"`
	LastRunTime   string          `json:"last_run_time,omitempty"`
	LastRunStatus string          `json:"last_run_status,omitempty"`
}

// TriggerPipeline handles POST /api/v1/admin/pipeline. The run is
// synchronous; a second request while one is running gets 409.
func (h *AdminHandler) TriggerPipeline(c *gin.Context) {
	ctx := c.Request.Context()

	if h.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Pipeline is not configured"})
		return
	}

	var req PipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stages := make([]service.Stage, 0, len(req.Stages))
	for _, name := range req.Stages {
		stage, err := service.ParseStage(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		stages = append(stages, stage)
	}
	stages = service.Ordered(stages)

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Pipeline request rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Pipeline is already running"})
		return
	}
	h.isRunning = true
	h.lastStages = stages
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting pipeline: stages=%v, client_ip=%s", stages, c.ClientIP())

	// Detach from the request so a client timeout does not cancel the run.
	runCtx := logger.FromContext(ctx).WithContext(context.Background())
	startTime := time.Now()
	err := h.pipeline.Run(runCtx, stages)
	duration := time.Since(startTime)

	h.mu.Lock()
	h.isRunning = false
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
		}).Error(ctx, "Pipeline failed: stages=%v, error=%v", stages, err)
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
	}).Info(ctx, "Pipeline completed: stages=%v", stages)

	c.JSON(http.StatusOK, gin.H{
		"message": "Pipeline completed successfully",
		"stages":  stages,
	})
}

// GetPipelineStatus handles GET /api/v1/admin/pipeline/status.
func (h *AdminHandler) GetPipelineStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := PipelineStatusResponse{
		IsRunning:     h.isRunning,
		LastStages:    h.lastStages,
		LastRunStatus: h.lastRunStatus,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// GetStats handles GET /api/v1/stats.
func (h *AdminHandler) GetStats(c *gin.Context) {
	count, err := h.index.CollectionCount(c.Request.Context(), h.collection)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"collection":   h.collection,
		"record_count": count,
	})
}

// ListRuns handles GET /api/v1/runs?limit=N and GET /api/v1/runs?run_id=ID.
// A run_id returns every stage of that run in execution order.
func (h *AdminHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Run ledger is disabled"})
		return
	}

	if runID := c.Query("run_id"); runID != "" {
		runs, err := h.runs.ListByRunID(c.Request.Context(), runID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(runs) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer in [1, 500]"})
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
