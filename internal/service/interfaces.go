package service

import (
	"context"

	"github.com/timmy/stitchrag/internal/domain"
)

// Embedder produces text embeddings.
type Embedder interface {
	Dimensions() int
	EmbedBatch(ctx context.Context, texts []string, dimensionality, batchSize int) ([]domain.Vector, error)
	EmbedQuery(ctx context.Context, text string) (domain.Vector, error)
}

// Chunker splits one document's text into ordered chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]string, error)
}

// VectorIndex is the index gateway contract shared by the Qdrant and
// in-memory backends.
type VectorIndex interface {
	ResetCollection(ctx context.Context, name string, metric domain.DistanceMetric) error
	InsertBatch(ctx context.Context, name string, ids []string, vectors []domain.Vector, documents []string, metadatas []map[string]string) error
	Query(ctx context.Context, name string, vector domain.Vector, k int) ([]domain.QueryResult, error)
	GetByIDs(ctx context.Context, name string, ids []string) (map[string]domain.StoredRecord, error)
	CollectionCount(ctx context.Context, name string) (int, error)
}

// RunRecorder persists stage executions. A nil recorder disables the ledger.
type RunRecorder interface {
	Start(ctx context.Context, run *domain.StageRun) error
	Complete(ctx context.Context, run *domain.StageRun, items int, artifact string) error
	Fail(ctx context.Context, run *domain.StageRun, runErr error) error
}
