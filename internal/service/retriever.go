package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/logger"
	"github.com/timmy/stitchrag/internal/rerank"
	"github.com/timmy/stitchrag/internal/vector"
)

// RetrieverConfig holds query defaults.
type RetrieverConfig struct {
	Collection  string
	TopK        int
	TextWeight  float64
	ImageWeight float64
}

// Retriever runs the dual text/image query and fuses the two rankings.
type Retriever struct {
	embedder Embedder
	index    VectorIndex
	encoder  *vector.Encoder
	cfg      RetrieverConfig
}

// NewRetriever creates a new Retriever.
func NewRetriever(embedder Embedder, index VectorIndex, encoder *vector.Encoder, cfg *RetrieverConfig) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		encoder:  encoder,
		cfg:      *cfg,
	}
}

// RetrieveRequest is one retrieval. Zero TopK and nil weights fall back to
// the configured defaults; a nil ImageVector makes the query text-only.
type RetrieveRequest struct {
	Query       string
	ImageVector domain.Vector
	TopK        int
	TextWeight  *float64
	ImageWeight *float64
}

// RetrieveResponse holds the fused ranking and the prompt built from it.
type RetrieveResponse struct {
	Prompt  string               `json:"prompt"`
	Results []rerank.FusedResult `json:"results"`
	Chunks  []string             `json:"chunks"`
}

// Retrieve embeds the query text, searches with the text-only and image-only
// combined vectors, fuses both result lists and looks up the chunk texts in
// fused order.
func (r *Retriever) Retrieve(ctx context.Context, req *RetrieveRequest) (*RetrieveResponse, error) {
	startTime := time.Now()

	topK := req.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	textWeight := r.cfg.TextWeight
	if req.TextWeight != nil {
		textWeight = *req.TextWeight
	}
	imageWeight := r.cfg.ImageWeight
	if req.ImageWeight != nil {
		imageWeight = *req.ImageWeight
	}

	textVec, err := r.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	textQuery, err := r.encoder.Combine(textVec, nil)
	if err != nil {
		return nil, err
	}
	textResults, err := r.index.Query(ctx, r.cfg.Collection, textQuery, topK)
	if err != nil {
		return nil, fmt.Errorf("text query: %w", err)
	}

	var imageResults []domain.QueryResult
	if req.ImageVector != nil {
		imageQuery, err := r.encoder.Combine(nil, req.ImageVector)
		if err != nil {
			return nil, err
		}
		imageResults, err = r.index.Query(ctx, r.cfg.Collection, imageQuery, topK)
		if err != nil {
			return nil, fmt.Errorf("image query: %w", err)
		}
	}

	fused := rerank.Fuse(textResults, imageResults, textWeight, imageWeight)
	ids := rerank.IDs(fused)

	records, err := r.index.GetByIDs(ctx, r.cfg.Collection, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch chunks: %w", err)
	}

	chunks := make([]string, 0, len(ids))
	for _, id := range ids {
		rec, ok := records[id]
		if !ok {
			logger.FromContext(ctx).WithField("record_id", id).Warn("Ranked record missing from collection")
			continue
		}
		chunks = append(chunks, rec.Document)
	}

	logger.With(logger.Fields{
		"text_hits":  len(textResults),
		"image_hits": len(imageResults),
	}).WithCount(len(fused)).
		WithDuration(time.Since(startTime).Milliseconds()).
		Info(ctx, "Retrieval completed")

	return &RetrieveResponse{
		Prompt:  BuildPrompt(req.Query, chunks),
		Results: fused,
		Chunks:  chunks,
	}, nil
}

// BuildPrompt joins the query and the retrieved chunks with single spaces.
func BuildPrompt(query string, chunks []string) string {
	return query + " " + strings.Join(chunks, " ")
}
