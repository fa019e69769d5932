package runs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/lakeflow/internal/domain/lake"
	"github.com/yungbote/lakeflow/internal/pkg/dbctx"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

var ErrRunNotFound = errors.New("pipeline run not found")

type RunRepo interface {
	Create(dbc dbctx.Context, run *lake.PipelineRun) (*lake.PipelineRun, error)
	RecordTable(dbc dbctx.Context, table *lake.RunTable) error
	Finish(dbc dbctx.Context, id uuid.UUID, runErr error, stages map[string]any) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*lake.PipelineRun, error)
	ListRecent(dbc dbctx.Context, pipeline string, limit int) ([]*lake.PipelineRun, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &runRepo{
		db:  db,
		log: baseLog.With("repo", "RunRepo"),
	}
}

func (r *runRepo) Create(dbc dbctx.Context, run *lake.PipelineRun) (*lake.PipelineRun, error) {
	if run == nil {
		return nil, errors.New("nil run")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = lake.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Stages == nil {
		run.Stages = datatypes.JSONMap{}
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// RecordTable upserts the table summary for (run_id, name).
func (r *runRepo) RecordTable(dbc dbctx.Context, table *lake.RunTable) error {
	if table == nil || table.RunID == uuid.Nil || table.Name == "" {
		return errors.New("run table requires run_id and name")
	}
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"location", "row_count", "file_count", "partition_count"}),
		}).
		Create(table).Error
}

func (r *runRepo) Finish(dbc dbctx.Context, id uuid.UUID, runErr error, stages map[string]any) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      lake.RunStatusSucceeded,
		"error":       "",
		"finished_at": now,
		"updated_at":  now,
	}
	if runErr != nil {
		updates["status"] = lake.RunStatusFailed
		updates["error"] = runErr.Error()
	}
	if stages != nil {
		updates["stages"] = datatypes.JSONMap(stages)
	}
	res := dbc.DB(r.db).Model(&lake.PipelineRun{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*lake.PipelineRun, error) {
	var run lake.PipelineRun
	err := dbc.DB(r.db).
		Preload("Tables", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		Where("id = ?", id).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) ListRecent(dbc dbctx.Context, pipeline string, limit int) ([]*lake.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := dbc.DB(r.db).Order("started_at DESC").Limit(limit)
	if pipeline != "" {
		q = q.Where("pipeline = ?", pipeline)
	}
	var out []*lake.PipelineRun
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
