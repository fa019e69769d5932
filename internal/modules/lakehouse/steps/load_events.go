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

type LoadEventsDeps struct {
	Session *lake.Session
	Log     *logger.Logger
	// Optional.
	Metrics *observability.Metrics
	Quality *observability.DataQualityReporter
}

type LoadEventsInput struct {
	InputLocation string
	// OutputRoot must already hold a complete items table.
	OutputRoot string
	// RunID names the part files written by this load.
	RunID string
}

type LoadEventsOutput struct {
	Users         *frame.Frame
	TimeBreakdown *frame.Frame
	Interactions  *frame.Frame
	Input         jsonsource.Stats
	// Plays is the number of events that qualified as interactions.
	Plays   int
	Written map[string]parquetio.WriteStats
	Issues  map[string]int
}

// LoadEvents reads raw events, keeps plays, and persists the users and
// time_breakdown dimensions and the interactions fact. Interactions are
// joined to the items table previously written under OutputRoot.
func LoadEvents(ctx context.Context, deps LoadEventsDeps, in LoadEventsInput) (LoadEventsOutput, error) {
	out := LoadEventsOutput{Written: map[string]parquetio.WriteStats{}}
	if deps.Session == nil || deps.Log == nil {
		return out, fmt.Errorf("load_events: missing deps")
	}
	if strings.TrimSpace(in.InputLocation) == "" {
		return out, fmt.Errorf("load_events: missing input location")
	}
	if strings.TrimSpace(in.OutputRoot) == "" {
		return out, fmt.Errorf("load_events: missing output root")
	}
	log := deps.Log.With("step", "load_events")

	raw, stats, err := deps.Session.ReadJSON(ctx, in.InputLocation, EventSchema)
	if err != nil {
		return out, fmt.Errorf("load_events: read %s: %w", in.InputLocation, err)
	}
	out.Input = stats
	deps.Metrics.ObserveInput("events", stats.Files, stats.Unreadable, stats.Records, stats.Malformed)

	plays := Plays(raw).Materialize(ctx)
	if out.Plays, err = plays.Count(ctx); err != nil {
		return out, fmt.Errorf("load_events: filter plays: %w", err)
	}

	out.Users = BuildUsers(plays)
	out.TimeBreakdown = BuildTimeBreakdown(plays)

	items, err := deps.Session.ReadParquet(ctx, TableLocation(in.OutputRoot, TableItems), ItemsSchema)
	if err != nil {
		return out, fmt.Errorf("load_events: read items: %w", err)
	}
	// Materialized so the join misses counted here are the rows written.
	out.Interactions = BuildInteractions(plays, items).Materialize(ctx)

	out.Issues = map[string]int{
		"unreadable_file":  stats.Unreadable,
		"malformed_record": stats.Malformed,
	}
	if err := countIssues(ctx, out.Issues, plays, map[string]frame.Condition{
		"null_user_id":   frame.Col("userId").IsNull(),
		"null_timestamp": frame.Col("timestamp").IsNull(),
	}); err != nil {
		return out, fmt.Errorf("load_events: %w", err)
	}
	if err := countIssues(ctx, out.Issues, out.Interactions, map[string]frame.Condition{
		"join_miss": frame.Col("item_id").IsNull(),
	}); err != nil {
		return out, fmt.Errorf("load_events: %w", err)
	}
	deps.Quality.Report(ctx, "events", out.Issues, map[string]any{"input": in.InputLocation, "plays": out.Plays})

	for _, t := range []struct {
		name string
		f    *frame.Frame
	}{
		{TableUsers, out.Users},
		{TableTimeBreakdown, out.TimeBreakdown},
		{TableInteractions, out.Interactions},
	} {
		ws, err := writeTable(ctx, deps.Session, deps.Metrics, t.f, in.OutputRoot, t.name, in.RunID)
		if err != nil {
			return out, fmt.Errorf("load_events: %w", err)
		}
		out.Written[t.name] = ws
	}
	log.Info("Events loaded",
		"input", in.InputLocation,
		"files", stats.Files,
		"records", stats.Records,
		"plays", out.Plays,
		"users", out.Written[TableUsers].Rows,
		"timestamps", out.Written[TableTimeBreakdown].Rows,
		"interactions", out.Written[TableInteractions].Rows,
		"join_misses", out.Issues["join_miss"],
	)
	return out, nil
}

// Plays keeps play events and adds their decoded "timestamp" column.
func Plays(raw *frame.Frame) *frame.Frame {
	return raw.
		Where(frame.Col("page").Eq(PlayPage)).
		WithColumn(frame.FromUnixMillis(frame.Col("ts")).As("timestamp"))
}

// BuildUsers projects the users dimension: one row per non-null user_id.
// When a user appears with different attributes the lowest row is kept.
func BuildUsers(plays *frame.Frame) *frame.Frame {
	return plays.Select(
		frame.Col("userId").As("user_id"),
		frame.Col("firstName").As("first_name"),
		frame.Col("lastName").As("last_name"),
		frame.Col("gender"),
		frame.Col("level"),
	).
		DropNulls("user_id").
		DropDuplicates().
		DropDuplicates("user_id")
}

// BuildTimeBreakdown decomposes each distinct play timestamp, ordered by
// timestamp.
func BuildTimeBreakdown(plays *frame.Frame) *frame.Frame {
	ts := frame.Col("timestamp")
	return plays.Select(
		ts,
		frame.Hour(ts).As("hour"),
		frame.DayOfMonth(ts).As("day"),
		frame.WeekOfYear(ts).As("week_of_year"),
		frame.Month(ts).As("month"),
		frame.Year(ts).As("year"),
		frame.DayOfWeek(ts).As("weekday"),
	).
		DropNulls("timestamp").
		DropDuplicates().
		OrderBy("timestamp")
}

// BuildInteractions left-joins plays to items on song title = item title.
// Items are first reduced to one row per title (lowest item_id), so every
// play yields exactly one interaction.
func BuildInteractions(plays, items *frame.Frame) *frame.Frame {
	byTitle := items.Select(
		frame.Col("title").As("item_title"),
		frame.Col("item_id"),
		frame.Col("owner_id"),
	).
		DropNulls("item_title").
		OrderBy("item_title", "item_id").
		DropDuplicates("item_title")

	ts := frame.Col("timestamp")
	return plays.
		LeftJoin(byTitle, "song", "item_title").
		WithMonotonicID("interaction_id").
		Select(
			frame.Col("interaction_id"),
			ts,
			frame.Year(ts).As("year"),
			frame.Month(ts).As("month"),
			frame.Col("userId").As("user_id"),
			frame.Col("level"),
			frame.Col("item_id"),
			frame.Col("owner_id"),
			frame.Col("sessionId").As("session_id"),
			frame.Col("location"),
			frame.Col("userAgent").As("client_agent"),
		)
}
