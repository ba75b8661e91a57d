// Package rerank merges ranked result lists from several queries into one
// list ordered by a weighted sum of distances.
package rerank

import (
	"fmt"
	"sort"

	"github.com/timmy/stitchrag/internal/domain"
)

// FusedResult is one id with its accumulated weighted distance.
type FusedResult struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// WeightedList is one query's ranked results and the weight applied to them.
type WeightedList struct {
	Results []domain.QueryResult
	Weight  float64
}

// Fuse combines the text and image query results. Lower scores rank first.
func Fuse(text, image []domain.QueryResult, textWeight, imageWeight float64) []FusedResult {
	return Combine(
		WeightedList{Results: text, Weight: textWeight},
		WeightedList{Results: image, Weight: imageWeight},
	)
}

// Combine sums distance*weight per id over every list the id appears in and
// sorts ascending by score. Ties keep first-seen order across the lists.
// Scores are not normalized.
func Combine(lists ...WeightedList) []FusedResult {
	index := make(map[string]int)
	var out []FusedResult
	for _, list := range lists {
		for _, r := range list.Results {
			i, ok := index[r.ID]
			if !ok {
				i = len(out)
				index[r.ID] = i
				out = append(out, FusedResult{ID: r.ID})
			}
			out[i].Score += r.Distance * list.Weight
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score < out[j].Score
	})
	return out
}

// FromNested converts a per-query nested response (one row of ids and one
// row of distances per query) into explicit results. Exactly one query row
// is accepted.
func FromNested(ids [][]string, distances [][]float64) ([]domain.QueryResult, error) {
	if len(ids) != 1 || len(distances) != 1 {
		return nil, fmt.Errorf("expected results for exactly one query, got %d id rows and %d distance rows",
			len(ids), len(distances))
	}
	if len(ids[0]) != len(distances[0]) {
		return nil, fmt.Errorf("got %d ids and %d distances", len(ids[0]), len(distances[0]))
	}

	out := make([]domain.QueryResult, len(ids[0]))
	for i, id := range ids[0] {
		out[i] = domain.QueryResult{ID: id, Distance: distances[0][i]}
	}
	return out, nil
}

// IDs returns the ids of results in order.
func IDs(results []FusedResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
