package chunker

import (
	"math"
	"sort"

	"github.com/timmy/stitchrag/internal/domain"
)

// centroid accumulates the running sum of a chunk's unit embeddings. Cosine
// similarity is scale invariant, so the sum stands in for the mean.
type centroid []float64

func newCentroid(v domain.Vector) centroid {
	c := make(centroid, len(v))
	c.add(v)
	return c
}

func (c centroid) add(v domain.Vector) {
	for i, x := range v {
		c[i] += float64(x)
	}
}

func (c centroid) similarity(v domain.Vector) float64 {
	var dot, na, nb float64
	for i, x := range v {
		f := float64(x)
		dot += c[i] * f
		na += c[i] * c[i]
		nb += f * f
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// adjacentSimilarities returns cosine similarity between each unit and its successor.
func adjacentSimilarities(vecs []domain.Vector) []float64 {
	if len(vecs) < 2 {
		return nil
	}
	sims := make([]float64, len(vecs)-1)
	for i := 0; i+1 < len(vecs); i++ {
		sims[i] = newCentroid(vecs[i]).similarity(vecs[i+1])
	}
	return sims
}

// percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (rank-float64(lo))*(sorted[hi]-sorted[lo])
}
