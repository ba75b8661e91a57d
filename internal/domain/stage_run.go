package domain

import "time"

// RunStatus represents the status of a pipeline stage execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StageRun records one execution of a pipeline stage and what it produced.
type StageRun struct {
	ID          string     `gorm:"type:text;primaryKey" json:"id"`
	RunID       string     `gorm:"type:text;not null;index" json:"run_id"`
	Stage       string     `gorm:"type:text;not null;index" json:"stage"`
	Status      RunStatus  `gorm:"type:text;default:running" json:"status"`
	Items       int        `gorm:"default:0" json:"items"`
	Artifact    string     `json:"artifact,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName returns the database table name for StageRun.
func (StageRun) TableName() string {
	return "stage_runs"
}
