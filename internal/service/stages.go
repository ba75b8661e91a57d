package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/timmy/stitchrag/internal/artifact"
	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/logger"
	"github.com/timmy/stitchrag/internal/rerank"
	"github.com/timmy/stitchrag/internal/source"
	"github.com/timmy/stitchrag/internal/source/corpus"
	"github.com/timmy/stitchrag/internal/vector"
)

// QueryFallbackText replaces the query when the query text file is missing.
const QueryFallbackText = "Text instruction not found."

const fetchPageSize = 100

// Download replaces the input directory with every object stored under the
// download prefix, keeping the layout below the prefix.
func (p *Pipeline) Download(ctx context.Context) (*StageReport, error) {
	if p.storage == nil {
		return nil, stageError(StageDownload, "", errors.New("object storage is not configured"))
	}

	if err := os.RemoveAll(p.cfg.InputDir); err != nil {
		return nil, stageError(StageDownload, p.cfg.InputDir, err)
	}
	if err := os.MkdirAll(p.cfg.InputDir, 0755); err != nil {
		return nil, stageError(StageDownload, p.cfg.InputDir, err)
	}

	prefix := strings.TrimSuffix(p.cfg.DownloadPrefix, "/") + "/"
	objects, err := p.storage.List(ctx, prefix)
	if err != nil {
		return nil, stageError(StageDownload, prefix, err)
	}

	count := 0
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		local := filepath.Join(p.cfg.InputDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(local, filepath.Clean(p.cfg.InputDir)+string(os.PathSeparator)) {
			return nil, stageError(StageDownload, obj.Key, errors.New("object key escapes the input directory"))
		}

		logger.CtxDebug(ctx, "Downloading %s", obj.Key)
		if err := p.downloadObject(ctx, obj.Key, local); err != nil {
			return nil, stageError(StageDownload, obj.Key, err)
		}
		count++
	}

	logger.CtxInfo(ctx, "Downloaded %d objects into %s", count, p.cfg.InputDir)
	return &StageReport{Items: count, Artifact: p.cfg.InputDir}, nil
}

func (p *Pipeline) downloadObject(ctx context.Context, key, local string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return err
	}
	rc, err := p.storage.Download(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(local)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Chunk splits every text document into semantic chunks and writes one
// chunks-<book>.jsonl per document.
func (p *Pipeline) Chunk(ctx context.Context) (*StageReport, error) {
	textDir := filepath.Join(p.cfg.InputDir, p.cfg.TextSubdir)
	items, err := source.FetchAll(ctx, corpus.NewTextAdapter(textDir), fetchPageSize)
	if err != nil {
		return nil, stageError(StageChunk, textDir, err)
	}
	logger.CtxInfo(ctx, "Number of documents to chunk: %d", len(items))

	total := 0
	for _, item := range items {
		n, err := p.chunkDocument(logger.SetBook(ctx, item.Book), item)
		if err != nil {
			return nil, stageError(StageChunk, item.Path, err)
		}
		total += n
	}
	return &StageReport{Items: total, Artifact: p.cfg.OutputDir}, nil
}

func (p *Pipeline) chunkDocument(ctx context.Context, item source.Item) (int, error) {
	text, err := os.ReadFile(item.Path)
	if err != nil {
		return 0, err
	}
	doc := domain.Document{Book: item.Book, Path: item.Path, Text: string(text)}

	chunks, err := p.chunker.Chunk(ctx, doc.Text)
	if err != nil {
		return 0, err
	}

	records := make([]artifact.ChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = artifact.ChunkRecord{Book: doc.Book, ChunkIndex: i, Chunk: c}
	}
	if err := artifact.WriteJSONL(artifact.ChunksPath(p.cfg.OutputDir, doc.Book), records); err != nil {
		return 0, err
	}

	logger.CtxInfo(ctx, "Number of chunks: %d", len(records))
	return len(records), nil
}

// Embed embeds every chunk file and pairs each chunk with its book's image
// embedding. A book without an image vector gets a null image embedding.
func (p *Pipeline) Embed(ctx context.Context) (*StageReport, error) {
	items, err := source.FetchAll(ctx, corpus.NewArtifactAdapter(p.cfg.OutputDir, artifact.ChunksPrefix), fetchPageSize)
	if err != nil {
		return nil, stageError(StageEmbed, p.cfg.OutputDir, err)
	}
	logger.CtxInfo(ctx, "Number of chunk files to embed: %d", len(items))

	total := 0
	for _, item := range items {
		n, err := p.embedFile(logger.SetBook(ctx, item.Book), item)
		if err != nil {
			return nil, stageError(StageEmbed, item.Path, err)
		}
		total += n
	}
	return &StageReport{Items: total, Artifact: p.cfg.OutputDir}, nil
}

func (p *Pipeline) embedFile(ctx context.Context, item source.Item) (int, error) {
	chunks, err := artifact.ReadJSONL[artifact.ChunkRecord](item.Path)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		logger.FromContext(ctx).WithError(domain.ErrNotFound).Warn("No chunks for document, skipping")
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk
	}
	vecs, err := p.embedder.EmbedBatch(ctx, texts, p.embedder.Dimensions(), p.cfg.EmbedBatchSize)
	if err != nil {
		return 0, err
	}

	book := chunks[0].Book
	image, err := p.loadImageVector(ctx, book)
	if err != nil {
		return 0, err
	}

	records := make([]artifact.EmbeddingRecord, len(chunks))
	for i, c := range chunks {
		records[i] = artifact.EmbeddingRecord{
			Book:           c.Book,
			ChunkIndex:     c.ChunkIndex,
			Chunk:          c.Chunk,
			Embedding:      vecs[i],
			ImageEmbedding: image,
		}
	}
	if err := artifact.WriteJSONL(artifact.EmbeddingsPath(p.cfg.OutputDir, item.Book), records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// loadImageVector reads <input>/<image_subdir>/<book>.npy. A missing file is
// logged and yields nil.
func (p *Pipeline) loadImageVector(ctx context.Context, book string) (domain.Vector, error) {
	path := filepath.Join(p.cfg.InputDir, p.cfg.ImageSubdir, book+".npy")
	v, err := vector.ReadNPYFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.FromContext(ctx).WithError(domain.ErrMissingCompanionData).Warnf("No image embedding found for %s", book)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(v) != p.encoder.ImageDim() {
		return nil, &domain.DimensionError{What: path, Got: len(v), Want: p.encoder.ImageDim()}
	}
	logger.CtxDebug(ctx, "Loaded image embedding from %s", path)
	return v, nil
}

// Load resets the collection and inserts every embeddings file. A record
// without an image embedding is indexed with a zero-filled image half.
func (p *Pipeline) Load(ctx context.Context) (*StageReport, error) {
	ctx = logger.WithField(ctx, logger.FieldCollection, p.cfg.Collection)

	if err := p.index.ResetCollection(ctx, p.cfg.Collection, p.cfg.Metric); err != nil {
		return nil, stageError(StageLoad, p.cfg.Collection, err)
	}

	items, err := source.FetchAll(ctx, corpus.NewArtifactAdapter(p.cfg.OutputDir, artifact.EmbeddingsPrefix), fetchPageSize)
	if err != nil {
		return nil, stageError(StageLoad, p.cfg.OutputDir, err)
	}
	logger.CtxInfo(ctx, "Number of embedding files to load: %d", len(items))

	total := 0
	for _, item := range items {
		n, err := p.loadFile(logger.SetBook(ctx, item.Book), item)
		if err != nil {
			return nil, stageError(StageLoad, item.Path, err)
		}
		total += n
	}

	count, err := p.index.CollectionCount(ctx, p.cfg.Collection)
	if err != nil {
		return nil, stageError(StageLoad, p.cfg.Collection, err)
	}
	if count != total {
		logger.CtxWarn(ctx, "Collection holds %d records after inserting %d", count, total)
	}
	logger.CtxInfo(ctx, "Finished inserting %d items into collection %s", total, p.cfg.Collection)
	return &StageReport{Items: total, Artifact: p.cfg.Collection}, nil
}

func (p *Pipeline) loadFile(ctx context.Context, item source.Item) (int, error) {
	records, err := artifact.ReadJSONL[artifact.EmbeddingRecord](item.Path)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, len(records))
	vectors := make([]domain.Vector, len(records))
	documents := make([]string, len(records))
	metadatas := make([]map[string]string, len(records))
	warned := false
	for i, rec := range records {
		image := rec.ImageEmbedding
		if image == nil {
			if !warned {
				logger.FromContext(ctx).WithError(domain.ErrMissingCompanionData).Warn("Indexing text-only records")
				warned = true
			}
			image = domain.Zero(p.encoder.ImageDim())
		}
		combined, err := p.encoder.Combine(rec.Embedding, image)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}

		ids[i] = domain.RecordID(rec.Book, rec.ChunkIndex)
		vectors[i] = combined
		documents[i] = rec.Chunk
		metadatas[i] = map[string]string{domain.MetadataBook: rec.Book}
	}

	if err := p.index.InsertBatch(ctx, p.cfg.Collection, ids, vectors, documents, metadatas); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Query answers the stored user query and writes the retrieved prompt.
func (p *Pipeline) Query(ctx context.Context) (*StageReport, error) {
	query, err := os.ReadFile(p.cfg.QueryTextFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.CtxWarn(ctx, "Query text %s not found, using fallback text", p.cfg.QueryTextFile)
		query = []byte(QueryFallbackText)
	case err != nil:
		return nil, stageError(StageQuery, p.cfg.QueryTextFile, err)
	}

	var image domain.Vector
	if p.cfg.QueryImageFile != "" {
		image, err = vector.ReadNPYFile(p.cfg.QueryImageFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.FromContext(ctx).WithError(domain.ErrMissingCompanionData).
				Warnf("Query image vector %s not found, running text-only query", p.cfg.QueryImageFile)
			image = nil
		case err != nil:
			return nil, stageError(StageQuery, p.cfg.QueryImageFile, err)
		}
	}

	resp, err := p.retriever.Retrieve(ctx, &RetrieveRequest{Query: string(query), ImageVector: image})
	if err != nil {
		return nil, stageError(StageQuery, p.cfg.Collection, err)
	}
	logger.CtxInfo(ctx, "Result IDs: %v", rerank.IDs(resp.Results))

	out := filepath.Join(p.cfg.JSONOutputDir, p.cfg.QueryOutputFile)
	if err := artifact.WriteJSON(out, artifact.Retrieved{Prompt: resp.Prompt}); err != nil {
		return nil, stageError(StageQuery, out, err)
	}
	logger.CtxInfo(ctx, "Data saved to %s", out)
	return &StageReport{Items: len(resp.Chunks), Artifact: out}, nil
}

// Upload copies every JSON output to the upload prefix.
func (p *Pipeline) Upload(ctx context.Context) (*StageReport, error) {
	if p.storage == nil {
		return nil, stageError(StageUpload, "", errors.New("object storage is not configured"))
	}

	files, err := filepath.Glob(filepath.Join(p.cfg.JSONOutputDir, "*.json"))
	if err != nil {
		return nil, stageError(StageUpload, p.cfg.JSONOutputDir, err)
	}
	if len(files) == 0 {
		logger.CtxWarn(ctx, "No JSON files found to upload in %s", p.cfg.JSONOutputDir)
		return &StageReport{}, nil
	}

	for _, file := range files {
		key := path.Join(p.cfg.UploadPrefix, filepath.Base(file))
		if err := p.uploadFile(ctx, file, key); err != nil {
			return nil, stageError(StageUpload, file, err)
		}
		logger.CtxInfo(ctx, "Uploaded %s to %s", file, p.storage.GetURL(key))
	}
	return &StageReport{Items: len(files), Artifact: p.cfg.UploadPrefix}, nil
}

func (p *Pipeline) uploadFile(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return p.storage.Upload(ctx, key, f, info.Size(), "application/json")
}
