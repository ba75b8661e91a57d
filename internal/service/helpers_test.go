package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/repository"
	"github.com/timmy/stitchrag/internal/vector"
)

const (
	testTextDim  = 4
	testImageDim = 2
)

var topicWords = []string{"chain", "yarn", "hook", "row"}

// keywordEmbedder counts topic words, so texts about the same topic point
// the same way.
type keywordEmbedder struct {
	fail  bool
	calls int
}

func (e *keywordEmbedder) Dimensions() int { return testTextDim }

func (e *keywordEmbedder) embed(text string) domain.Vector {
	lower := strings.ToLower(text)
	v := make(domain.Vector, testTextDim)
	for i, w := range topicWords {
		v[i] = float32(strings.Count(lower, w)) + 0.01
	}
	return v
}

func (e *keywordEmbedder) EmbedBatch(_ context.Context, texts []string, dimensionality, batchSize int) ([]domain.Vector, error) {
	e.calls++
	if e.fail {
		return nil, &domain.ProviderError{Provider: "test", Op: "embed", Err: errors.New("quota exceeded")}
	}
	out := make([]domain.Vector, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(ctx context.Context, text string) (domain.Vector, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, testTextDim, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// paragraphChunker splits on blank lines.
type paragraphChunker struct{}

func (paragraphChunker) Chunk(_ context.Context, text string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordedRun struct {
	stage  string
	status domain.RunStatus
	items  int
	err    string
}

type memoryRecorder struct {
	runs []recordedRun
}

func (r *memoryRecorder) Start(_ context.Context, run *domain.StageRun) error {
	run.Status = domain.RunStatusRunning
	return nil
}

func (r *memoryRecorder) Complete(_ context.Context, run *domain.StageRun, items int, _ string) error {
	r.runs = append(r.runs, recordedRun{stage: run.Stage, status: domain.RunStatusCompleted, items: items})
	return nil
}

func (r *memoryRecorder) Fail(_ context.Context, run *domain.StageRun, runErr error) error {
	r.runs = append(r.runs, recordedRun{stage: run.Stage, status: domain.RunStatusFailed, err: runErr.Error()})
	return nil
}

type testEnv struct {
	root     string
	cfg      PipelineConfig
	embedder *keywordEmbedder
	index    *repository.MemoryIndex
	recorder *memoryRecorder
	pipeline *Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := PipelineConfig{
		InputDir:        filepath.Join(root, "input_datasets"),
		OutputDir:       filepath.Join(root, "outputs"),
		JSONOutputDir:   filepath.Join(root, "json_outputs"),
		TextSubdir:      "text_instructions/txt_outputs",
		ImageSubdir:     "image_vectors",
		EmbedBatchSize:  2,
		Collection:      "test-collection",
		Metric:          domain.DistanceCosine,
		DownloadPrefix:  "training",
		UploadPrefix:    "rag/rag_json_outputs",
		QueryTextFile:   filepath.Join(root, "user_inputs", "query.txt"),
		QueryImageFile:  filepath.Join(root, "user_inputs", "query.npy"),
		QueryOutputFile: "retrieved_data.json",
	}

	encoder := vector.NewEncoder(testTextDim, testImageDim)
	embedder := &keywordEmbedder{}
	index := repository.NewMemoryIndex(encoder.Width(), 2)
	recorder := &memoryRecorder{}
	retriever := NewRetriever(embedder, index, encoder, &RetrieverConfig{
		Collection:  cfg.Collection,
		TopK:        10,
		TextWeight:  0.6,
		ImageWeight: 0.4,
	})

	p := NewPipeline(&PipelineDeps{
		Chunker:   paragraphChunker{},
		Embedder:  embedder,
		Index:     index,
		Retriever: retriever,
		Encoder:   encoder,
		Recorder:  recorder,
	}, &cfg)

	return &testEnv{root: root, cfg: cfg, embedder: embedder, index: index, recorder: recorder, pipeline: p}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// seedCorpus writes two books; only "alpha" has an image vector.
func (e *testEnv) seedCorpus(t *testing.T) {
	t.Helper()
	textDir := filepath.Join(e.cfg.InputDir, e.cfg.TextSubdir)
	writeFile(t, filepath.Join(textDir, "alpha.txt"), "Make a chain of four.\n\nJoin the chain with a slip stitch.\n\nWork the next row.")
	writeFile(t, filepath.Join(textDir, "beta.pattern.txt"), "Wind the yarn.\n\nPick the hook size.")
	imageDir := filepath.Join(e.cfg.InputDir, e.cfg.ImageSubdir)
	require.NoError(t, os.MkdirAll(imageDir, 0755))
	require.NoError(t, vector.WriteNPYFile(filepath.Join(imageDir, "alpha.npy"), domain.Vector{1, 0}))
}
