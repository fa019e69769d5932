// Package lake holds the run ledger models: one PipelineRun per driver
// invocation and one RunTable per table the run wrote.
package lake

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

type PipelineRun struct {
	ID         uuid.UUID         `gorm:"primaryKey" json:"id"`
	Pipeline   string            `gorm:"column:pipeline;not null;index" json:"pipeline"`
	Profile    string            `gorm:"column:profile;not null" json:"profile"`
	InputRoot  string            `gorm:"column:input_root" json:"input_root"`
	OutputRoot string            `gorm:"column:output_root" json:"output_root"`
	Status     string            `gorm:"column:status;not null;index" json:"status"`
	Error      string            `gorm:"column:error" json:"error,omitempty"`
	Stages     datatypes.JSONMap `gorm:"column:stages" json:"stages"`
	StartedAt  time.Time         `gorm:"column:started_at;not null;index" json:"started_at"`
	FinishedAt *time.Time        `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`

	Tables []RunTable `gorm:"foreignKey:RunID" json:"tables,omitempty"`
}

func (PipelineRun) TableName() string { return "pipeline_run" }

type RunTable struct {
	ID         uuid.UUID `gorm:"primaryKey" json:"id"`
	RunID      uuid.UUID `gorm:"column:run_id;not null;uniqueIndex:idx_run_table" json:"run_id"`
	Name       string    `gorm:"column:name;not null;uniqueIndex:idx_run_table" json:"name"`
	Location   string    `gorm:"column:location;not null" json:"location"`
	Rows       int64     `gorm:"column:row_count;not null;default:0" json:"rows"`
	Files      int       `gorm:"column:file_count;not null;default:0" json:"files"`
	Partitions int       `gorm:"column:partition_count;not null;default:0" json:"partitions"`
	CreatedAt  time.Time `json:"created_at"`
}

func (RunTable) TableName() string { return "pipeline_run_table" }
