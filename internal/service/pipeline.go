package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/stitchrag/internal/domain"
	"github.com/timmy/stitchrag/internal/logger"
	"github.com/timmy/stitchrag/internal/storage"
	"github.com/timmy/stitchrag/internal/vector"
)

// Stage names one pipeline step.
type Stage string

const (
	StageDownload Stage = "download"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageLoad     Stage = "load"
	StageQuery    Stage = "query"
	StageUpload   Stage = "upload"
)

// stageOrder is the canonical execution order.
var stageOrder = []Stage{StageDownload, StageChunk, StageEmbed, StageLoad, StageQuery, StageUpload}

// ParseStage maps a stage name onto a Stage.
func ParseStage(name string) (Stage, error) {
	for _, s := range stageOrder {
		if string(s) == strings.ToLower(strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", name)
}

// Ordered returns the distinct stages in canonical order.
func Ordered(stages []Stage) []Stage {
	rank := make(map[Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		rank[s] = i
	}
	seen := make(map[Stage]bool, len(stages))
	out := make([]Stage, 0, len(stages))
	for _, s := range stages {
		if _, ok := rank[s]; !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}

// PipelineConfig holds directory layout and query settings for the stages.
type PipelineConfig struct {
	InputDir       string
	OutputDir      string
	JSONOutputDir  string
	TextSubdir     string
	ImageSubdir    string
	EmbedBatchSize int

	Collection string
	Metric     domain.DistanceMetric

	DownloadPrefix string
	UploadPrefix   string

	QueryTextFile   string
	QueryImageFile  string
	QueryOutputFile string
}

// Pipeline runs the file-driven stages. Each stage reads only the durable
// artifact of the previous stage.
type Pipeline struct {
	chunker   Chunker
	embedder  Embedder
	index     VectorIndex
	retriever *Retriever
	encoder   *vector.Encoder
	storage   storage.ObjectStorage
	recorder  RunRecorder
	cfg       PipelineConfig
}

// PipelineDeps groups the collaborators of a Pipeline. Storage is only
// needed by download and upload, Recorder is optional.
type PipelineDeps struct {
	Chunker   Chunker
	Embedder  Embedder
	Index     VectorIndex
	Retriever *Retriever
	Encoder   *vector.Encoder
	Storage   storage.ObjectStorage
	Recorder  RunRecorder
}

// NewPipeline creates a new Pipeline.
func NewPipeline(deps *PipelineDeps, cfg *PipelineConfig) *Pipeline {
	return &Pipeline{
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		index:     deps.Index,
		retriever: deps.Retriever,
		encoder:   deps.Encoder,
		storage:   deps.Storage,
		recorder:  deps.Recorder,
		cfg:       *cfg,
	}
}

// StageReport is what a stage reports to the run ledger.
type StageReport struct {
	Items    int
	Artifact string
}

// Run executes the requested stages in canonical order and stops at the
// first failure.
func (p *Pipeline) Run(ctx context.Context, stages []Stage) error {
	runID := uuid.New().String()
	ctx = logger.SetRunID(ctx, runID)

	ordered := Ordered(stages)
	logger.CtxInfo(ctx, "Starting pipeline run with stages %v", ordered)
	for _, stage := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runStage(ctx, runID, stage); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, runID string, stage Stage) error {
	ctx = logger.SetStage(ctx, string(stage))
	log := logger.FromContext(ctx)

	run := &domain.StageRun{RunID: runID, Stage: string(stage)}
	if p.recorder != nil {
		if err := p.recorder.Start(ctx, run); err != nil {
			log.WithError(err).Warn("Failed to record stage start")
		}
	}

	startTime := time.Now()
	res, err := p.dispatch(ctx, stage)
	if err != nil {
		if p.recorder != nil {
			if recErr := p.recorder.Fail(ctx, run, err); recErr != nil {
				log.WithError(recErr).Warn("Failed to record stage failure")
			}
		}
		log.WithError(err).Error("Stage failed")
		return err
	}

	if p.recorder != nil {
		if recErr := p.recorder.Complete(ctx, run, res.Items, res.Artifact); recErr != nil {
			log.WithError(recErr).Warn("Failed to record stage completion")
		}
	}
	logger.With(logger.Fields{"artifact": res.Artifact}).
		WithCount(res.Items).
		WithDuration(time.Since(startTime).Milliseconds()).
		Info(ctx, "Stage completed")
	return nil
}

func (p *Pipeline) dispatch(ctx context.Context, stage Stage) (*StageReport, error) {
	switch stage {
	case StageDownload:
		return p.Download(ctx)
	case StageChunk:
		return p.Chunk(ctx)
	case StageEmbed:
		return p.Embed(ctx)
	case StageLoad:
		return p.Load(ctx)
	case StageQuery:
		return p.Query(ctx)
	case StageUpload:
		return p.Upload(ctx)
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

func stageError(stage Stage, artifact string, err error) error {
	return &domain.StageError{Stage: string(stage), Artifact: artifact, Err: err}
}
