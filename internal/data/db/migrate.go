package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/lakeflow/internal/domain/lake"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&lake.PipelineRun{},
		&lake.RunTable{},
	)
}
