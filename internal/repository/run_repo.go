package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/timmy/stitchrag/internal/domain"
)

// RunRepository persists stage execution records.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Start inserts a running record for stage.
func (r *RunRepository) Start(ctx context.Context, run *domain.StageRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.Status = domain.RunStatusRunning
	return r.db.WithContext(ctx).Create(run).Error
}

// Complete marks run as completed with the number of items it produced.
func (r *RunRepository) Complete(ctx context.Context, run *domain.StageRun, items int, artifact string) error {
	now := time.Now()
	run.Status = domain.RunStatusCompleted
	run.Items = items
	run.Artifact = artifact
	run.CompletedAt = &now
	return r.db.WithContext(ctx).Save(run).Error
}

// Fail marks run as failed and records the error message.
func (r *RunRepository) Fail(ctx context.Context, run *domain.StageRun, runErr error) error {
	now := time.Now()
	run.Status = domain.RunStatusFailed
	run.Error = runErr.Error()
	run.CompletedAt = &now
	return r.db.WithContext(ctx).Save(run).Error
}

// ListRecent returns the most recently started stage runs.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]domain.StageRun, error) {
	var runs []domain.StageRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// ListByRunID returns the stages of one orchestrator run in execution order.
func (r *RunRepository) ListByRunID(ctx context.Context, runID string) ([]domain.StageRun, error) {
	var runs []domain.StageRun
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("started_at ASC").
		Find(&runs).Error
	return runs, err
}
