// Package chunker partitions document text into semantically coherent chunks.
package chunker

import (
	"context"
	"fmt"

	"github.com/timmy/stitchrag/internal/domain"
)

// EmbedFunc embeds texts in order, returning one vector per text.
type EmbedFunc func(ctx context.Context, texts []string) ([]domain.Vector, error)

// Mode selects how the split threshold is chosen.
type Mode string

const (
	// ModeThreshold splits when similarity drops below a fixed value.
	ModeThreshold Mode = "threshold"
	// ModePercentile derives the threshold from the document's own
	// adjacent-unit similarity distribution.
	ModePercentile Mode = "percentile"
)

// Config holds chunker settings.
type Config struct {
	Mode Mode
	// SimilarityThreshold is used in threshold mode; nil means 0.8. Zero is
	// a valid setting that splits only on negative similarity.
	SimilarityThreshold *float64
	Percentile          float64
}

// Threshold returns a pointer to v for Config.SimilarityThreshold.
func Threshold(v float64) *float64 {
	return &v
}

// SemanticChunker splits text at points where meaning shifts.
type SemanticChunker struct {
	embed EmbedFunc
	cfg   Config
}

// NewSemanticChunker creates a chunker backed by embed.
func NewSemanticChunker(embed EmbedFunc, cfg *Config) *SemanticChunker {
	c := Config{Mode: ModeThreshold, SimilarityThreshold: Threshold(0.8), Percentile: 95}
	if cfg != nil {
		if cfg.Mode != "" {
			c.Mode = cfg.Mode
		}
		if cfg.SimilarityThreshold != nil {
			c.SimilarityThreshold = Threshold(*cfg.SimilarityThreshold)
		}
		if cfg.Percentile > 0 && cfg.Percentile < 100 {
			c.Percentile = cfg.Percentile
		}
	}
	return &SemanticChunker{embed: embed, cfg: c}
}

// Chunk returns the chunks of text in source order. Every unit is embedded
// in a single call to the embed function; if it fails no chunks are returned.
func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	units := segment(text)
	switch len(units) {
	case 0:
		return nil, nil
	case 1:
		return []string{text[units[0].start:units[0].end]}, nil
	}

	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = text[u.start:u.end]
	}

	vecs, err := c.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d units: %w", len(units), err)
	}
	if len(vecs) != len(units) {
		return nil, &domain.ProviderError{
			Provider: "embedding",
			Op:       "chunk",
			Err:      fmt.Errorf("got %d vectors for %d units", len(vecs), len(units)),
		}
	}
	for i := range vecs {
		if len(vecs[i]) != len(vecs[0]) {
			return nil, &domain.DimensionError{What: fmt.Sprintf("unit %d embedding", i), Got: len(vecs[i]), Want: len(vecs[0])}
		}
	}

	threshold := *c.cfg.SimilarityThreshold
	if c.cfg.Mode == ModePercentile {
		threshold = percentile(adjacentSimilarities(vecs), 100-c.cfg.Percentile)
	}

	groups := groupUnits(vecs, threshold)
	chunks := make([]string, len(groups))
	for i, g := range groups {
		chunks[i] = text[units[g[0]].start:units[g[1]].end]
	}
	return chunks, nil
}

// groupUnits walks the units in order and returns [first, last] unit index
// pairs. A unit opens a new group when its similarity to the running group
// centroid is below threshold.
func groupUnits(vecs []domain.Vector, threshold float64) [][2]int {
	var groups [][2]int
	first := 0
	running := newCentroid(vecs[0])
	for i := 1; i < len(vecs); i++ {
		if running.similarity(vecs[i]) < threshold {
			groups = append(groups, [2]int{first, i - 1})
			first = i
			running = newCentroid(vecs[i])
			continue
		}
		running.add(vecs[i])
	}
	return append(groups, [2]int{first, len(vecs) - 1})
}
