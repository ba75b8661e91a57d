package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/timmy/stitchrag/internal/api/middleware"
	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/rerank"
	"github.com/timmy/stitchrag/internal/service"
)

// Retriever answers retrieval requests.
type Retriever interface {
	Retrieve(ctx context.Context, req *service.RetrieveRequest) (*service.RetrieveResponse, error)
}

// RAGHandler handles retrieval and re-ranking endpoints.
type RAGHandler struct {
	retriever   Retriever
	textWeight  float64
	imageWeight float64
}

// NewRAGHandler creates a new RAG handler. The weights are the defaults
// for re-rank requests that omit them.
func NewRAGHandler(retriever Retriever, textWeight, imageWeight float64) *RAGHandler {
	return &RAGHandler{
		retriever:   retriever,
		textWeight:  textWeight,
		imageWeight: imageWeight,
	}
}

// RAGRequest represents the retrieval API request.
type RAGRequest struct {
	UserQuery      string        `json:"user_query" binding:"required"`
	ImageEmbedding domain.Vector `json:"image_embedding"`
	ImageVector    domain.Vector `json:"image_vector"` // alias of image_embedding
	TopK           int           `json:"top_k" binding:"omitempty,min=1,max=100"`
	TextWeight     *float64      `json:"text_weight"`
	ImageWeight    *float64      `json:"image_weight"`
}

// Retrieve handles POST /api/v1/rag.
func (h *RAGHandler) Retrieve(c *gin.Context) {
	ctx := c.Request.Context()

	var req RAGRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	image := req.ImageEmbedding
	if image == nil {
		image = req.ImageVector
	}

	resp, err := h.retriever.Retrieve(ctx, &service.RetrieveRequest{
		Query:       req.UserQuery,
		ImageVector: image,
		TopK:        req.TopK,
		TextWeight:  req.TextWeight,
		ImageWeight: req.ImageWeight,
	})
	if err != nil {
		middleware.GetLogger(c).WithError(err).Warn("Retrieval failed")
		c.JSON(statusFor(err), gin.H{"error": "Retrieval failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// NestedResults is a per-query nested result set: one row per query.
type NestedResults struct {
	IDs       [][]string  `json:"ids"`
	Distances [][]float64 `json:"distances"`
}

// RerankRequest represents the re-rank API request.
type RerankRequest struct {
	TextResults  NestedResults `json:"text_results"`
	ImageResults NestedResults `json:"image_results"`
	TextWeight   *float64      `json:"text_weight"`
	ImageWeight  *float64      `json:"image_weight"`
}

// Rerank handles POST /api/v1/rerank. Each result set must hold exactly one
// query.
func (h *RAGHandler) Rerank(c *gin.Context) {
	var req RerankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	text, err := rerank.FromNested(req.TextResults.IDs, req.TextResults.Distances)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text_results: " + err.Error()})
		return
	}
	image, err := rerank.FromNested(req.ImageResults.IDs, req.ImageResults.Distances)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image_results: " + err.Error()})
		return
	}

	textWeight, imageWeight := h.textWeight, h.imageWeight
	if req.TextWeight != nil {
		textWeight = *req.TextWeight
	}
	if req.ImageWeight != nil {
		imageWeight = *req.ImageWeight
	}

	c.JSON(http.StatusOK, gin.H{
		"results": rerank.Fuse(text, image, textWeight, imageWeight),
	})
}
