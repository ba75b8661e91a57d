// Package app assembles the engine's components from configuration. Both
// binaries share it.
package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/timmy/stitchrag/internal/chunker"
	"github.com/timmy/stitchrag/internal/config"
	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/embedding"
	"github.com/timmy/stitchrag/internal/logger"
	"github.com/timmy/stitchrag/internal/repository"
	"github.com/timmy/stitchrag/internal/service"
	"github.com/timmy/stitchrag/internal/storage"
	"github.com/timmy/stitchrag/internal/vector"
)

// Index is a vector index that owns a connection.
type Index interface {
	service.VectorIndex
	Close() error
}

// Options selects the optional parts of an App.
type Options struct {
	// WithStorage connects to the object store; download and upload need it.
	WithStorage bool
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Embedder  *embedding.Adapter
	Encoder   *vector.Encoder
	Index     Index
	Retriever *service.Retriever
	Pipeline  *service.Pipeline
	Storage   storage.ObjectStorage
	Runs      *repository.RunRepository // nil when the ledger is disabled

	db *gorm.DB
}

// New wires every component from cfg. The caller must Close the App.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	cfg.Embedding.ResolveEnvVars()
	if err := cfg.Embedding.ValidateWithCredentials(); err != nil {
		return nil, err
	}

	provider := embedding.NewVertexProvider(&embedding.VertexConfig{
		BaseURL:     cfg.Embedding.BaseURL,
		Project:     cfg.Embedding.Project,
		Location:    cfg.Embedding.Location,
		Model:       cfg.Embedding.Model,
		AccessToken: cfg.Embedding.AccessToken,
		Timeout:     cfg.Embedding.Timeout,
	})
	embedder := embedding.NewAdapter(provider, &embedding.AdapterConfig{
		Dimensions:        cfg.Embedding.Dimensions,
		BatchSize:         cfg.Embedding.BatchSize,
		TaskType:          cfg.Embedding.TaskType,
		QueryTaskType:     cfg.Embedding.QueryTaskType,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	})

	encoder := vector.NewEncoder(cfg.Embedding.Dimensions, cfg.Image.Dimensions)
	width := cfg.VectorWidth()
	metric := domain.DistanceMetric(cfg.Index.Metric)

	var index Index
	switch cfg.Index.Backend {
	case "memory":
		index = repository.NewMemoryIndex(width, cfg.Index.InsertBatchSize)
	default:
		qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorWidth:     width,
			InsertBatchSize: cfg.Index.InsertBatchSize,
			Metric:          metric,
		})
		if err != nil {
			return nil, err
		}
		index = qdrantRepo
	}

	a := &App{
		Config:   cfg,
		Embedder: embedder,
		Encoder:  encoder,
		Index:    index,
	}

	if opts.WithStorage {
		objectStorage, err := newStorage(ctx, &cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Storage = objectStorage
	}

	if cfg.Database.Enabled {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize run ledger: %w", err)
		}
		a.db = db
		a.Runs = repository.NewRunRepository(db)
	}

	a.Retriever = service.NewRetriever(embedder, index, encoder, &service.RetrieverConfig{
		Collection:  cfg.Index.Collection,
		TopK:        cfg.Query.TopK,
		TextWeight:  cfg.Query.TextWeight,
		ImageWeight: cfg.Query.ImageWeight,
	})

	semantic := chunker.NewSemanticChunker(embedder.EmbedDocuments, &chunker.Config{
		Mode:                chunker.Mode(cfg.Chunker.Mode),
		SimilarityThreshold: chunker.Threshold(cfg.Chunker.SimilarityThreshold),
		Percentile:          cfg.Chunker.Percentile,
	})

	deps := &service.PipelineDeps{
		Chunker:   semantic,
		Embedder:  embedder,
		Index:     index,
		Retriever: a.Retriever,
		Encoder:   encoder,
		Storage:   a.Storage,
	}
	if a.Runs != nil {
		deps.Recorder = a.Runs
	}

	a.Pipeline = service.NewPipeline(deps, &service.PipelineConfig{
		InputDir:        cfg.Pipeline.InputDir,
		OutputDir:       cfg.Pipeline.OutputDir,
		JSONOutputDir:   cfg.Pipeline.JSONOutputDir,
		TextSubdir:      cfg.Pipeline.TextSubdir,
		ImageSubdir:     cfg.Pipeline.ImageSubdir,
		EmbedBatchSize:  cfg.Pipeline.EmbedBatchSize,
		Collection:      cfg.Index.Collection,
		Metric:          metric,
		DownloadPrefix:  cfg.Storage.DownloadPrefix,
		UploadPrefix:    cfg.Storage.UploadPrefix,
		QueryTextFile:   cfg.Query.TextFile,
		QueryImageFile:  cfg.Query.ImageVectorFile,
		QueryOutputFile: cfg.Query.OutputFile,
	})

	logger.With(logger.Fields{
		"index_backend": cfg.Index.Backend,
		"vector_width":  width,
		"run_ledger":    a.Runs != nil,
		"storage":       a.Storage != nil,
	}).Info(ctx, "Components initialized: collection=%s", cfg.Index.Collection)

	return a, nil
}

// Close releases the index connection and the run ledger database.
func (a *App) Close() {
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			logger.GetDefault().WithError(err).Warn("Failed to close vector index")
		}
	}
	if a.db != nil {
		if err := repository.CloseDB(a.db); err != nil {
			logger.GetDefault().WithError(err).Warn("Failed to close run ledger database")
		}
	}
}

func newStorage(ctx context.Context, cfg *config.StorageConfig) (storage.ObjectStorage, error) {
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Type),
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if s3, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}
	return objectStorage, nil
}
