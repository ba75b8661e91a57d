package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	index      CollectionCounter
	collection string
}

// NewHealthHandler creates a new health handler. A nil index skips the
// readiness probe.
func NewHealthHandler(index CollectionCounter, collection string) *HealthHandler {
	return &HealthHandler{index: index, collection: collection}
}

// Health reports liveness. It never touches a dependency.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready reports whether the vector index answers for the configured
// collection. A missing collection still counts as reachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.index == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if _, err := h.index.CollectionCount(ctx, h.collection); err != nil && statusFor(err) != http.StatusNotFound {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
