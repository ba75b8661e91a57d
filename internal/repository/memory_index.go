package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/logger"
)

// MemoryIndex is an in-process index gateway using brute-force search.
type MemoryIndex struct {
	mu              sync.RWMutex
	width           int
	insertBatchSize int
	collections     map[string]*memoryCollection
	upserts         int // sub-batches applied
}

type memoryCollection struct {
	metric  domain.DistanceMetric
	order   []string
	records map[string]memoryRecord
}

type memoryRecord struct {
	vector   domain.Vector
	document string
	metadata map[string]string
}

// NewMemoryIndex creates an empty index for vectors of the given width.
func NewMemoryIndex(width, insertBatchSize int) *MemoryIndex {
	if insertBatchSize <= 0 {
		insertBatchSize = defaultInsertBatchSize
	}
	return &MemoryIndex{
		width:           width,
		insertBatchSize: insertBatchSize,
		collections:     make(map[string]*memoryCollection),
	}
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

// ResetCollection drops the named collection if present and creates it empty.
func (m *MemoryIndex) ResetCollection(ctx context.Context, name string, metric domain.DistanceMetric) error {
	if _, err := qdrantDistance(metric); err != nil {
		return err
	}
	if metric == "" {
		metric = domain.DistanceCosine
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		logger.FromContext(ctx).WithField(logger.FieldCollection, name).Info("Collection does not exist, nothing to delete")
	}
	m.collections[name] = &memoryCollection{
		metric:  metric,
		records: make(map[string]memoryRecord),
	}
	return nil
}

// InsertBatch stores records in sub-batches of the configured size,
// replacing any existing record with the same id. Validation happens before
// the first sub-batch is applied.
func (m *MemoryIndex) InsertBatch(ctx context.Context, name string, ids []string, vectors []domain.Vector, documents []string, metadatas []map[string]string) error {
	if err := checkInsert(m.width, ids, vectors, documents, metadatas); err != nil {
		return err
	}

	log := logger.FromContext(ctx).WithField(logger.FieldCollection, name)
	for start := 0; start < len(ids); start += m.insertBatchSize {
		end := start + m.insertBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := m.upsert(name, ids[start:end], vectors[start:end], documents[start:end], metadatas[start:end]); err != nil {
			return err
		}
		log.Debugf("Inserted records %d-%d of %d", start, end, len(ids))
	}
	return nil
}

func (m *MemoryIndex) upsert(name string, ids []string, vectors []domain.Vector, documents []string, metadatas []map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	for i, id := range ids {
		if _, exists := c.records[id]; !exists {
			c.order = append(c.order, id)
		}
		meta := make(map[string]string, len(metadatas[i]))
		for k, v := range metadatas[i] {
			meta[k] = v
		}
		c.records[id] = memoryRecord{
			vector:   vectors[i].Clone(),
			document: documents[i],
			metadata: meta,
		}
	}
	m.upserts++
	return nil
}

// Query returns up to k records ordered by ascending distance. Ties keep
// insertion order.
func (m *MemoryIndex) Query(ctx context.Context, name string, vector domain.Vector, k int) ([]domain.QueryResult, error) {
	if len(vector) != m.width {
		return nil, &domain.DimensionError{What: "query vector", Got: len(vector), Want: m.width}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}

	results := make([]domain.QueryResult, 0, len(c.order))
	for _, id := range c.order {
		results = append(results, domain.QueryResult{
			ID:       id,
			Distance: distance(c.metric, c.records[id].vector, vector),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if k >= 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// GetByIDs returns the stored records for the ids that exist.
func (m *MemoryIndex) GetByIDs(ctx context.Context, name string, ids []string) (map[string]domain.StoredRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}

	out := make(map[string]domain.StoredRecord, len(ids))
	for _, id := range ids {
		rec, ok := c.records[id]
		if !ok {
			continue
		}
		out[id] = domain.StoredRecord{
			Document:  rec.document,
			Embedding: rec.vector.Clone(),
			Metadata:  rec.metadata,
		}
	}
	return out, nil
}

// CollectionCount returns the number of records in the collection.
func (m *MemoryIndex) CollectionCount(ctx context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	return len(c.records), nil
}

func distance(metric domain.DistanceMetric, a, b domain.Vector) float64 {
	var dot, na, nb, sq float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		sq += (x - y) * (x - y)
	}
	switch metric {
	case domain.DistanceEuclidean:
		return math.Sqrt(sq)
	case domain.DistanceDot:
		return -dot
	default:
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	}
}
