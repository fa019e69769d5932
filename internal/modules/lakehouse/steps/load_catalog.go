package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/lakeflow/internal/lake"
	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/jsonsource"
	"github.com/yungbote/lakeflow/internal/lake/parquetio"
	"github.com/yungbote/lakeflow/internal/observability"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

type LoadCatalogDeps struct {
	Session *lake.Session
	Log     *logger.Logger
	// Optional.
	Metrics *observability.Metrics
	Quality *observability.DataQualityReporter
}

type LoadCatalogInput struct {
	InputLocation string
	OutputRoot    string
	// RunID names the part files written by this load.
	RunID string
}

type LoadCatalogOutput struct {
	Items    *frame.Frame
	Entities *frame.Frame
	Input    jsonsource.Stats
	Written  map[string]parquetio.WriteStats
	Issues   map[string]int
}

// LoadCatalog reads raw catalog records and persists the items and entities
// dimensions under OutputRoot, replacing any previous output.
func LoadCatalog(ctx context.Context, deps LoadCatalogDeps, in LoadCatalogInput) (LoadCatalogOutput, error) {
	out := LoadCatalogOutput{Written: map[string]parquetio.WriteStats{}}
	if deps.Session == nil || deps.Log == nil {
		return out, fmt.Errorf("load_catalog: missing deps")
	}
	if strings.TrimSpace(in.InputLocation) == "" {
		return out, fmt.Errorf("load_catalog: missing input location")
	}
	if strings.TrimSpace(in.OutputRoot) == "" {
		return out, fmt.Errorf("load_catalog: missing output root")
	}
	log := deps.Log.With("step", "load_catalog")

	raw, stats, err := deps.Session.ReadJSON(ctx, in.InputLocation, CatalogSchema)
	if err != nil {
		return out, fmt.Errorf("load_catalog: read %s: %w", in.InputLocation, err)
	}
	out.Input = stats
	deps.Metrics.ObserveInput("catalog", stats.Files, stats.Unreadable, stats.Records, stats.Malformed)

	out.Items = BuildItems(raw)
	out.Entities = BuildEntities(raw)

	out.Issues = map[string]int{
		"unreadable_file":  stats.Unreadable,
		"malformed_record": stats.Malformed,
	}
	if err := countIssues(ctx, out.Issues, raw, map[string]frame.Condition{
		"null_item_id":  frame.Col("song_id").IsNull(),
		"null_owner_id": frame.Col("artist_id").IsNull(),
	}); err != nil {
		return out, fmt.Errorf("load_catalog: %w", err)
	}
	deps.Quality.Report(ctx, "catalog", out.Issues, map[string]any{"input": in.InputLocation})

	for _, t := range []struct {
		name string
		f    *frame.Frame
	}{
		{TableItems, out.Items},
		{TableEntities, out.Entities},
	} {
		ws, err := writeTable(ctx, deps.Session, deps.Metrics, t.f, in.OutputRoot, t.name, in.RunID)
		if err != nil {
			return out, fmt.Errorf("load_catalog: %w", err)
		}
		out.Written[t.name] = ws
	}
	log.Info("Catalog loaded",
		"input", in.InputLocation,
		"files", stats.Files,
		"records", stats.Records,
		"items", out.Written[TableItems].Rows,
		"entities", out.Written[TableEntities].Rows,
	)
	return out, nil
}

// BuildItems projects the items dimension: one row per non-null item_id
// with a non-null owner.
func BuildItems(raw *frame.Frame) *frame.Frame {
	return raw.Select(
		frame.Col("song_id").As("item_id"),
		frame.Col("title"),
		frame.Col("artist_id").As("owner_id"),
		frame.Col("year").As("release_year"),
		frame.Col("duration"),
	).
		DropNulls("item_id", "owner_id").
		DropDuplicates().
		DropDuplicates("item_id")
}

// BuildEntities projects the entities dimension: one row per non-null
// owner_id.
func BuildEntities(raw *frame.Frame) *frame.Frame {
	return raw.Select(
		frame.Col("artist_id").As("owner_id"),
		frame.Col("artist_name").As("name"),
		frame.Col("artist_location").As("location"),
		frame.Col("artist_latitude").As("latitude"),
		frame.Col("artist_longitude").As("longitude"),
	).
		DropNulls("owner_id").
		DropDuplicates().
		DropDuplicates("owner_id")
}

func writeTable(ctx context.Context, s *lake.Session, m *observability.Metrics, f *frame.Frame, root, table, runID string) (parquetio.WriteStats, error) {
	ws, err := s.WriteParquet(ctx, f, TableLocation(root, table), parquetio.WriteOptions{
		RunID:       runID,
		PartitionBy: PartitionColumns[table],
	})
	if err != nil {
		return ws, fmt.Errorf("write %s: %w", table, err)
	}
	m.SetTable(table, ws.Rows, ws.Files)
	return ws, nil
}

// countIssues adds the number of rows of f matching each condition to
// issues.
func countIssues(ctx context.Context, issues map[string]int, f *frame.Frame, conds map[string]frame.Condition) error {
	for name, cond := range conds {
		n, err := f.Where(cond).Count(ctx)
		if err != nil {
			return fmt.Errorf("count %s: %w", name, err)
		}
		issues[name] = n
	}
	return nil
}
