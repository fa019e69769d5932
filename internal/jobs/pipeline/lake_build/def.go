package lake_build

import (
	"github.com/yungbote/lakeflow/internal/data/repos/runs"
	"github.com/yungbote/lakeflow/internal/lake"
	"github.com/yungbote/lakeflow/internal/observability"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

type Pipeline struct {
	log     *logger.Logger
	session *lake.Session
	profile string

	// Optional.
	runs    runs.RunRepo
	metrics *observability.Metrics
	quality *observability.DataQualityReporter
}

func New(
	baseLog *logger.Logger,
	session *lake.Session,
	profile string,
	runRepo runs.RunRepo,
	metrics *observability.Metrics,
	quality *observability.DataQualityReporter,
) *Pipeline {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Pipeline{
		log:     baseLog.With("job", "lake_build"),
		session: session,
		profile: profile,
		runs:    runRepo,
		metrics: metrics,
		quality: quality,
	}
}

func (p *Pipeline) Type() string { return "lake_build" }
