package lake_build

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/lakeflow/internal/domain/lake"
	"github.com/yungbote/lakeflow/internal/lake/parquetio"
	"github.com/yungbote/lakeflow/internal/modules/lakehouse/steps"
	"github.com/yungbote/lakeflow/internal/observability"
	"github.com/yungbote/lakeflow/internal/pkg/dbctx"
)

const (
	PhaseCatalog = "catalog"
	PhaseEvents  = "events"
	PhaseTotal   = "total"
)

type Input struct {
	EventsInput  string
	CatalogInput string
	OutputRoot   string
}

type PhaseTiming struct {
	Name     string
	Duration time.Duration
}

type Result struct {
	RunID   string
	Timings []PhaseTiming
	// Counts holds the row count of every table, keyed by table name.
	Counts map[string]int
	Tables map[string]parquetio.WriteStats
	Issues map[string]map[string]int
}

// Run builds all five tables: the catalog phase first, then the events
// phase, which joins against the items table the catalog phase persisted.
// Every call is a new run with its own id. Progress lines and the final
// report are written to out when non-nil.
func (p *Pipeline) Run(ctx context.Context, in Input, out io.Writer) (Result, error) {
	runID := uuid.New()
	res := Result{
		RunID:  runID.String(),
		Counts: map[string]int{},
		Tables: map[string]parquetio.WriteStats{},
		Issues: map[string]map[string]int{},
	}
	if out == nil {
		out = io.Discard
	}
	ctx, span := observability.StartSpan(ctx, "lake_build.run",
		attribute.String("lake.run_id", res.RunID),
		attribute.String("lake.profile", p.profile),
	)
	log := p.log.With("run_id", res.RunID, "profile", p.profile)

	recorded := p.startRun(ctx, runID, in)
	start := time.Now()
	fmt.Fprintln(out, "Start ETL process")

	err := p.runPhases(ctx, in, out, &res)

	total := time.Since(start)
	res.Timings = append(res.Timings, PhaseTiming{Name: PhaseTotal, Duration: total})
	if recorded {
		p.finishRun(ctx, runID, err, &res)
	}
	observability.EndSpan(span, err)
	if err != nil {
		p.metrics.ObserveStage(p.Type(), PhaseTotal, "failed", total)
		log.Error("Pipeline failed", "error", err, "elapsed", total.String())
		return res, err
	}
	p.metrics.ObserveStage(p.Type(), PhaseTotal, "succeeded", total)
	p.metrics.MarkSuccess(time.Now())

	fmt.Fprintln(out, "End ETL process")
	fmt.Fprintf(out, "Time to process ETL : %s\n", total)
	for _, table := range steps.TableOrder {
		fmt.Fprintf(out, "%s has : %d records\n", table, res.Counts[table])
	}
	log.Info("Pipeline finished", "elapsed", total.String(), "counts", res.Counts)
	return res, nil
}

func (p *Pipeline) runPhases(ctx context.Context, in Input, out io.Writer, res *Result) error {
	err := p.phase(ctx, PhaseCatalog, out, res, func(ctx context.Context) (map[string]parquetio.WriteStats, map[string]int, error) {
		o, err := steps.LoadCatalog(ctx, steps.LoadCatalogDeps{
			Session: p.session,
			Log:     p.log,
			Metrics: p.metrics,
			Quality: p.quality,
		}, steps.LoadCatalogInput{
			InputLocation: in.CatalogInput,
			OutputRoot:    in.OutputRoot,
			RunID:         res.RunID,
		})
		return o.Written, o.Issues, err
	})
	if err != nil {
		return err
	}
	return p.phase(ctx, PhaseEvents, out, res, func(ctx context.Context) (map[string]parquetio.WriteStats, map[string]int, error) {
		o, err := steps.LoadEvents(ctx, steps.LoadEventsDeps{
			Session: p.session,
			Log:     p.log,
			Metrics: p.metrics,
			Quality: p.quality,
		}, steps.LoadEventsInput{
			InputLocation: in.EventsInput,
			OutputRoot:    in.OutputRoot,
			RunID:         res.RunID,
		})
		return o.Written, o.Issues, err
	})
}

type phaseFunc func(ctx context.Context) (map[string]parquetio.WriteStats, map[string]int, error)

func (p *Pipeline) phase(ctx context.Context, name string, out io.Writer, res *Result, fn phaseFunc) error {
	ctx, span := observability.StartSpan(ctx, "lake_build."+name)
	fmt.Fprintf(out, "Start processing %s JSON files...\n", name)
	start := time.Now()

	written, issues, err := fn(ctx)
	elapsed := time.Since(start)
	observability.EndSpan(span, err)
	if err != nil {
		p.metrics.ObserveStage(p.Type(), name, "failed", elapsed)
		return fmt.Errorf("%s: %w", name, err)
	}
	p.metrics.ObserveStage(p.Type(), name, "succeeded", elapsed)

	for table, ws := range written {
		res.Tables[table] = ws
		res.Counts[table] = ws.Rows
	}
	res.Issues[name] = issues
	res.Timings = append(res.Timings, PhaseTiming{Name: name, Duration: elapsed})

	fmt.Fprintf(out, "End processing %s JSON files...\n", name)
	fmt.Fprintf(out, "Time to process %s : %s\n", name, elapsed)
	return nil
}

// startRun opens a ledger record and reports whether it exists. Ledger
// failures are logged and never fail the run.
func (p *Pipeline) startRun(ctx context.Context, id uuid.UUID, in Input) bool {
	if p.runs == nil {
		return false
	}
	_, err := p.runs.Create(dbctx.Context{Ctx: ctx}, &lake.PipelineRun{
		ID:         id,
		Pipeline:   p.Type(),
		Profile:    p.profile,
		InputRoot:  in.CatalogInput + "," + in.EventsInput,
		OutputRoot: in.OutputRoot,
	})
	if err != nil {
		p.log.Warn("Run ledger create failed", "error", err, "run_id", id.String())
		return false
	}
	return true
}

func (p *Pipeline) finishRun(ctx context.Context, id uuid.UUID, runErr error, res *Result) {
	// Record even when ctx was cancelled.
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	for table, ws := range res.Tables {
		if err := p.runs.RecordTable(dbc, &lake.RunTable{
			RunID:      id,
			Name:       table,
			Location:   ws.Location,
			Rows:       int64(ws.Rows),
			Files:      ws.Files,
			Partitions: ws.Partitions,
		}); err != nil {
			p.log.Warn("Run ledger table record failed", "error", err, "table", table)
		}
	}
	stages := map[string]any{}
	for _, t := range res.Timings {
		stages[t.Name+"_seconds"] = t.Duration.Seconds()
	}
	issues := map[string]any{}
	for phase, m := range res.Issues {
		issues[phase] = m
	}
	stages["issues"] = issues
	if err := p.runs.Finish(dbc, id, runErr, stages); err != nil {
		p.log.Warn("Run ledger finish failed", "error", err)
	}
}
