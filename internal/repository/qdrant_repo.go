package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/logger"
)

const (
	defaultInsertBatchSize = 500

	payloadRecordID = "record_id"
	payloadDocument = "document"
	payloadMetadata = "metadata"
)

// QdrantConnectionConfig holds configuration for Qdrant connection
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorWidth     int
	InsertBatchSize int
	Metric          domain.DistanceMetric // assumed for collections this process did not create
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository is the index gateway backed by Qdrant collections.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	width           int
	insertBatchSize int
	defaultMetric   domain.DistanceMetric

	mu      sync.RWMutex
	metrics map[string]domain.DistanceMetric
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption

	// TLS is enabled if: APIKey is set OR UseTLS is explicitly true
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return newQdrantRepository(conn, cfg), nil
}

// newQdrantRepository builds the gateway over an established connection.
func newQdrantRepository(conn *grpc.ClientConn, cfg *QdrantConnectionConfig) *QdrantRepository {
	batch := cfg.InsertBatchSize
	if batch <= 0 {
		batch = defaultInsertBatchSize
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		width:           cfg.VectorWidth,
		insertBatchSize: batch,
		defaultMetric:   cfg.Metric,
		metrics:         make(map[string]domain.DistanceMetric),
	}
}

// Close closes the gRPC connection
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// ResetCollection deletes the named collection if it exists and creates it
// empty. A missing collection is only logged.
func (r *QdrantRepository) ResetCollection(ctx context.Context, name string, metric domain.DistanceMetric) error {
	log := logger.FromContext(ctx).WithField(logger.FieldCollection, name)

	distance, err := qdrantDistance(metric)
	if err != nil {
		return err
	}

	_, err = r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	switch {
	case isNotFound(err):
		log.Info("Collection does not exist, nothing to delete")
	case err != nil:
		return r.providerError("get collection", err)
	default:
		if _, err := r.collectClient.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
			return r.providerError("delete collection", err)
		}
		log.Info("Deleted existing collection")
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.width),
					Distance: distance,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return r.providerError("create collection", err)
	}

	r.mu.Lock()
	r.metrics[name] = metric
	r.mu.Unlock()
	log.WithField("width", r.width).Info("Created collection")
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func qdrantDistance(metric domain.DistanceMetric) (pb.Distance, error) {
	switch metric {
	case domain.DistanceCosine, "":
		return pb.Distance_Cosine, nil
	case domain.DistanceEuclidean:
		return pb.Distance_Euclid, nil
	case domain.DistanceDot:
		return pb.Distance_Dot, nil
	default:
		return pb.Distance_UnknownDistance, fmt.Errorf("unsupported distance metric %q", metric)
	}
}

// PointID maps a record id onto the UUID Qdrant requires as point id.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

// InsertBatch writes records in sub-batches of the configured size. Every
// vector is width-checked before the first write and each sub-batch is one
// synchronous upsert.
func (r *QdrantRepository) InsertBatch(ctx context.Context, name string, ids []string, vectors []domain.Vector, documents []string, metadatas []map[string]string) error {
	if err := checkInsert(r.width, ids, vectors, documents, metadatas); err != nil {
		return err
	}

	log := logger.FromContext(ctx).WithField(logger.FieldCollection, name)
	wait := true
	for start := 0; start < len(ids); start += r.insertBatchSize {
		end := start + r.insertBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &pb.PointStruct{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(ids[i])},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vectors[i]},
					},
				},
				Payload: buildPayload(ids[i], documents[i], metadatas[i]),
			})
		}

		if _, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: name,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
			}
			return r.providerError(fmt.Sprintf("upsert records %d-%d", start, end), err)
		}
		log.Debugf("Inserted records %d-%d of %d", start, end, len(ids))
	}
	return nil
}

func buildPayload(recordID, document string, meta map[string]string) map[string]*pb.Value {
	fields := make(map[string]*pb.Value, len(meta))
	for k, v := range meta {
		fields[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	return map[string]*pb.Value{
		payloadRecordID: {Kind: &pb.Value_StringValue{StringValue: recordID}},
		payloadDocument: {Kind: &pb.Value_StringValue{StringValue: document}},
		payloadMetadata: {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: fields}}},
	}
}

func parseMetadata(payload map[string]*pb.Value) map[string]string {
	v, ok := payload[payloadMetadata]
	if !ok {
		return nil
	}
	s := v.GetStructValue()
	if s == nil {
		return nil
	}
	out := make(map[string]string, len(s.GetFields()))
	for k, field := range s.GetFields() {
		out[k] = field.GetStringValue()
	}
	return out
}

// Query returns up to k nearest records, most similar first, with distances
// where lower is more similar.
func (r *QdrantRepository) Query(ctx context.Context, name string, vector domain.Vector, k int) ([]domain.QueryResult, error) {
	if len(vector) != r.width {
		return nil, &domain.DimensionError{What: "query vector", Got: len(vector), Want: r.width}
	}

	resp, err := r.pointsClient.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Include{
				Include: &pb.PayloadIncludeSelector{Fields: []string{payloadRecordID}},
			},
		},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
		}
		return nil, r.providerError("search", err)
	}

	metric := r.metric(name)
	results := make([]domain.QueryResult, 0, len(resp.GetResult()))
	for _, scored := range resp.GetResult() {
		results = append(results, domain.QueryResult{
			ID:       scored.GetPayload()[payloadRecordID].GetStringValue(),
			Distance: scoreToDistance(metric, scored.GetScore()),
		})
	}
	return results, nil
}

// scoreToDistance converts a Qdrant score (higher is better for cosine and
// dot) into a distance (lower is better).
func scoreToDistance(metric domain.DistanceMetric, score float32) float64 {
	switch metric {
	case domain.DistanceEuclidean:
		return float64(score)
	case domain.DistanceDot:
		return -float64(score)
	default:
		return 1 - float64(score)
	}
}

func (r *QdrantRepository) metric(name string) domain.DistanceMetric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.metrics[name]; ok {
		return m
	}
	return r.defaultMetric
}

// GetByIDs fetches stored documents and embeddings. Ids that are not in the
// collection are absent from the result.
func (r *QdrantRepository) GetByIDs(ctx context.Context, name string, ids []string) (map[string]domain.StoredRecord, error) {
	out := make(map[string]domain.StoredRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}

	resp, err := r.pointsClient.Get(ctx, &pb.GetPoints{
		CollectionName: name,
		Ids:            pointIDs,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
		}
		return nil, r.providerError("get points", err)
	}

	for _, point := range resp.GetResult() {
		payload := point.GetPayload()
		id := payload[payloadRecordID].GetStringValue()
		if id == "" {
			continue
		}
		out[id] = domain.StoredRecord{
			Document:  payload[payloadDocument].GetStringValue(),
			Embedding: domain.Vector(point.GetVectors().GetVector().GetData()),
			Metadata:  parseMetadata(payload),
		}
	}
	return out, nil
}

// CollectionCount returns the exact number of records in the collection.
func (r *QdrantRepository) CollectionCount(ctx context.Context, name string) (int, error) {
	exact := true
	resp, err := r.pointsClient.Count(ctx, &pb.CountPoints{
		CollectionName: name,
		Exact:          &exact,
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
		}
		return 0, r.providerError("count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (r *QdrantRepository) providerError(op string, err error) error {
	return &domain.ProviderError{Provider: "qdrant", Op: op, Err: err}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	return ok && s.Code() == codes.NotFound
}

// checkInsert validates an insert request before any write happens.
func checkInsert(width int, ids []string, vectors []domain.Vector, documents []string, metadatas []map[string]string) error {
	if len(vectors) != len(ids) || len(documents) != len(ids) || len(metadatas) != len(ids) {
		return fmt.Errorf("insert: mismatched lengths: %d ids, %d vectors, %d documents, %d metadatas",
			len(ids), len(vectors), len(documents), len(metadatas))
	}
	for i, v := range vectors {
		if len(v) != width {
			return &domain.DimensionError{What: fmt.Sprintf("record %s", ids[i]), Got: len(v), Want: width}
		}
	}
	return nil
}
