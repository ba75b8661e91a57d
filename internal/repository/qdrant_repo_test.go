package repository

import (
	"context"
	"net"
	"sync"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/timmy/stitchrag/internal/domain"
)

type fakeCollections struct {
	pb.UnimplementedCollectionsServer

	mu      sync.Mutex
	exists  bool
	calls   []string
	created *pb.CreateCollection
}

func (f *fakeCollections) Get(_ context.Context, req *pb.GetCollectionInfoRequest) (*pb.GetCollectionInfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "get")
	if !f.exists {
		return nil, status.Errorf(codes.NotFound, "collection %s not found", req.GetCollectionName())
	}
	return &pb.GetCollectionInfoResponse{}, nil
}

func (f *fakeCollections) Delete(context.Context, *pb.DeleteCollection) (*pb.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete")
	f.exists = false
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) Create(_ context.Context, req *pb.CreateCollection) (*pb.CollectionOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	f.exists = true
	f.created = req
	return &pb.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	pb.UnimplementedPointsServer

	mu           sync.Mutex
	missing      bool // every call answers NotFound
	failUpsertAt int  // 1-based upsert call that fails; 0 never fails
	upsertSizes  []int
	search       []*pb.ScoredPoint
	retrieved    []*pb.RetrievedPoint
	count        uint64
}

func (f *fakePoints) notFound() error {
	return status.Error(codes.NotFound, "collection not found")
}

func (f *fakePoints) Upsert(_ context.Context, req *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return nil, f.notFound()
	}
	f.upsertSizes = append(f.upsertSizes, len(req.GetPoints()))
	if len(f.upsertSizes) == f.failUpsertAt {
		return nil, status.Error(codes.Unavailable, "node down")
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(context.Context, *pb.SearchPoints) (*pb.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return nil, f.notFound()
	}
	return &pb.SearchResponse{Result: f.search}, nil
}

func (f *fakePoints) Get(context.Context, *pb.GetPoints) (*pb.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return nil, f.notFound()
	}
	return &pb.GetResponse{Result: f.retrieved}, nil
}

func (f *fakePoints) Count(context.Context, *pb.CountPoints) (*pb.CountResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return nil, f.notFound()
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: f.count}}, nil
}

// newBufconnRepo serves the fakes in memory and returns a gateway dialed to
// them.
func newBufconnRepo(t *testing.T, collections *fakeCollections, points *fakePoints, batchSize int) *QdrantRepository {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterCollectionsServer(srv, collections)
	pb.RegisterPointsServer(srv, points)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	repo := newQdrantRepository(conn, &QdrantConnectionConfig{
		VectorWidth:     2,
		InsertBatchSize: batchSize,
		Metric:          domain.DistanceCosine,
	})
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func TestQdrantRepository_ResetMissingCollection(t *testing.T) {
	collections := &fakeCollections{}
	repo := newBufconnRepo(t, collections, &fakePoints{}, 500)

	require.NoError(t, repo.ResetCollection(context.Background(), "patterns", domain.DistanceCosine))

	assert.Equal(t, []string{"get", "create"}, collections.calls)
	require.NotNil(t, collections.created)
	params := collections.created.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(2), params.GetSize())
	assert.Equal(t, pb.Distance_Cosine, params.GetDistance())
}

func TestQdrantRepository_ResetExistingCollection(t *testing.T) {
	collections := &fakeCollections{exists: true}
	repo := newBufconnRepo(t, collections, &fakePoints{}, 500)

	require.NoError(t, repo.ResetCollection(context.Background(), "patterns", domain.DistanceEuclidean))

	assert.Equal(t, []string{"get", "delete", "create"}, collections.calls)
	assert.Equal(t, pb.Distance_Euclid, collections.created.GetVectorsConfig().GetParams().GetDistance())
}

func TestQdrantRepository_InsertSubBatches(t *testing.T) {
	points := &fakePoints{}
	repo := newBufconnRepo(t, &fakeCollections{exists: true}, points, 500)

	ids, vectors, docs, metas := sampleRecords(1001)
	require.NoError(t, repo.InsertBatch(context.Background(), "patterns", ids, vectors, docs, metas))

	assert.Equal(t, []int{500, 500, 1}, points.upsertSizes)
}

func TestQdrantRepository_InsertFailedSubBatch(t *testing.T) {
	points := &fakePoints{failUpsertAt: 2}
	repo := newBufconnRepo(t, &fakeCollections{exists: true}, points, 500)

	ids, vectors, docs, metas := sampleRecords(1001)
	err := repo.InsertBatch(context.Background(), "patterns", ids, vectors, docs, metas)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvider)
	assert.Contains(t, err.Error(), "500-1000")
	assert.Equal(t, []int{500, 500}, points.upsertSizes, "no sub-batch after the failed one")
}

func TestQdrantRepository_InsertRejectsBeforeWriting(t *testing.T) {
	points := &fakePoints{}
	repo := newBufconnRepo(t, &fakeCollections{exists: true}, points, 500)

	err := repo.InsertBatch(context.Background(), "patterns",
		[]string{"a", "b"},
		[]domain.Vector{{1, 0}, {1, 0, 0}},
		[]string{"doc a", "doc b"},
		[]map[string]string{{}, {}})

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Empty(t, points.upsertSizes)
}

func TestQdrantRepository_QueryConvertsScores(t *testing.T) {
	points := &fakePoints{search: []*pb.ScoredPoint{
		{Payload: map[string]*pb.Value{payloadRecordID: stringValue("alpha-0")}, Score: 0.9},
		{Payload: map[string]*pb.Value{payloadRecordID: stringValue("alpha-1")}, Score: 0.25},
	}}
	repo := newBufconnRepo(t, &fakeCollections{}, points, 500)
	ctx := context.Background()
	require.NoError(t, repo.ResetCollection(ctx, "patterns", domain.DistanceCosine))

	got, err := repo.Query(ctx, "patterns", domain.Vector{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha-0", got[0].ID)
	assert.InDelta(t, 0.1, got[0].Distance, 1e-6)
	assert.Equal(t, "alpha-1", got[1].ID)
	assert.InDelta(t, 0.75, got[1].Distance, 1e-6)

	_, err = repo.Query(ctx, "patterns", domain.Vector{1}, 2)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestQdrantRepository_GetByIDs(t *testing.T) {
	points := &fakePoints{retrieved: []*pb.RetrievedPoint{{
		Payload: map[string]*pb.Value{
			payloadRecordID: stringValue("alpha-0"),
			payloadDocument: stringValue("Make a chain of four."),
			payloadMetadata: {Kind: &pb.Value_StructValue{StructValue: &pb.Struct{
				Fields: map[string]*pb.Value{domain.MetadataBook: stringValue("alpha")},
			}}},
		},
	}}}
	repo := newBufconnRepo(t, &fakeCollections{exists: true}, points, 500)

	got, err := repo.GetByIDs(context.Background(), "patterns", []string{"alpha-0", "alpha-9"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Make a chain of four.", got["alpha-0"].Document)
	assert.Equal(t, "alpha", got["alpha-0"].Metadata[domain.MetadataBook])

	empty, err := repo.GetByIDs(context.Background(), "patterns", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestQdrantRepository_MissingCollection(t *testing.T) {
	repo := newBufconnRepo(t, &fakeCollections{}, &fakePoints{missing: true}, 500)
	ctx := context.Background()

	_, err := repo.Query(ctx, "patterns", domain.Vector{1, 0}, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.GetByIDs(ctx, "patterns", []string{"alpha-0"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.CollectionCount(ctx, "patterns")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ids, vectors, docs, metas := sampleRecords(1)
	err = repo.InsertBatch(ctx, "patterns", ids, vectors, docs, metas)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQdrantRepository_CollectionCount(t *testing.T) {
	repo := newBufconnRepo(t, &fakeCollections{exists: true}, &fakePoints{count: 1001}, 500)

	n, err := repo.CollectionCount(context.Background(), "patterns")
	require.NoError(t, err)
	assert.Equal(t, 1001, n)
}
