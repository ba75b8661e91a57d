// Package artifact reads and writes the durable files that pipeline stages
// hand to each other.
package artifact

import (
	"fmt"
	"path/filepath"

	"github.com/timmy/stitchrag/internal/domain"
)

const (
	ChunksPrefix     = "chunks-"
	EmbeddingsPrefix = "embeddings-"
	Extension        = ".jsonl"

	// RetrievedFile is the default name of the query stage output.
	RetrievedFile = "retrieved_data.json"
)

// ChunkRecord is one line of a chunks-<book>.jsonl file.
type ChunkRecord struct {
	Book       string `json:"book"`
	ChunkIndex int    `json:"chunk_index"`
	Chunk      string `json:"chunk"`
}

// EmbeddingRecord is one line of an embeddings-<book>.jsonl file. The image
// embedding is null when the book has no companion image vector.
type EmbeddingRecord struct {
	Book           string        `json:"book"`
	ChunkIndex     int           `json:"chunk_index"`
	Chunk          string        `json:"chunk"`
	Embedding      domain.Vector `json:"embedding"`
	ImageEmbedding domain.Vector `json:"image_embedding"`
}

// Retrieved is the query stage output consumed by the generation step.
type Retrieved struct {
	Prompt string `json:"prompt"`
}

// ChunksPath returns dir/chunks-<book>.jsonl.
func ChunksPath(dir, book string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s%s", ChunksPrefix, book, Extension))
}

// EmbeddingsPath returns dir/embeddings-<book>.jsonl.
func EmbeddingsPath(dir, book string) string {
	return filepath.Join(dir, fmt.Sprintf("%s%s%s", EmbeddingsPrefix, book, Extension))
}
