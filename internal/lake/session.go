// Package lake is the execution engine facade the loaders run against. A
// Session binds an object store to an embedded DuckDB engine: it reads
// JSON sources and parquet tables into frames and persists frames as
// partitioned parquet tables.
package lake

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/lakeflow/internal/lake/frame"
	"github.com/yungbote/lakeflow/internal/lake/jsonsource"
	"github.com/yungbote/lakeflow/internal/lake/parquetio"
	"github.com/yungbote/lakeflow/internal/lake/store"
	"github.com/yungbote/lakeflow/internal/observability"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

type Options struct {
	Workers   int
	Location  *time.Location
	MultiLine bool
}

type Session struct {
	store  store.Store
	log    *logger.Logger
	opts   Options
	engine *frame.Engine
	json   *jsonsource.Reader
	tables *parquetio.Reader
	writer *parquetio.Writer
}

func NewSession(st store.Store, log *logger.Logger, opts Options) (*Session, error) {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	eng, err := frame.Open(frame.WithWorkers(opts.Workers), frame.WithLocation(opts.Location))
	if err != nil {
		return nil, fmt.Errorf("lake: %w", err)
	}
	sessionLog := log.With("component", "lake.Session")
	return &Session{
		store:  st,
		log:    sessionLog,
		opts:   opts,
		engine: eng,
		json:   jsonsource.NewReader(st, sessionLog, jsonsource.Options{MultiLine: opts.MultiLine, Workers: opts.Workers}),
		tables: parquetio.NewReader(st, sessionLog, opts.Workers),
		writer: parquetio.NewWriter(st, sessionLog, opts.Workers),
	}, nil
}

func (s *Session) Close() error { return s.engine.Close() }

func (s *Session) Store() store.Store { return s.store }

func (s *Session) Engine() *frame.Engine { return s.engine }

// ReadJSON loads the records at location projected onto schema.
func (s *Session) ReadJSON(ctx context.Context, location string, schema *frame.Schema) (*frame.Frame, jsonsource.Stats, error) {
	ctx, span := observability.StartSpan(ctx, "lake.read_json", attribute.String("lake.location", location))
	parts, stats, err := s.json.Read(ctx, location, schema)
	span.SetAttributes(
		attribute.Int("lake.files", stats.Files),
		attribute.Int("lake.records", stats.Records),
		attribute.Int("lake.malformed", stats.Malformed),
	)
	var f *frame.Frame
	if err == nil {
		var rows []frame.Row
		for _, p := range parts {
			rows = append(rows, p...)
		}
		f = s.engine.FromRows(ctx, schema, rows)
		err = f.Err()
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, stats, err
	}
	s.log.Info("JSON source loaded",
		"location", location,
		"files", stats.Files,
		"unreadable_files", stats.Unreadable,
		"records", stats.Records,
		"malformed", stats.Malformed,
	)
	return f, stats, nil
}

// ReadParquet loads a table previously written with WriteParquet.
func (s *Session) ReadParquet(ctx context.Context, location string, schema *frame.Schema) (*frame.Frame, error) {
	ctx, span := observability.StartSpan(ctx, "lake.read_parquet", attribute.String("lake.location", location))
	f, err := s.tables.Read(ctx, s.engine, location, schema)
	observability.EndSpan(span, err)
	return f, err
}

// WriteParquet overwrites the table at location with f.
func (s *Session) WriteParquet(ctx context.Context, f *frame.Frame, location string, opts parquetio.WriteOptions) (parquetio.WriteStats, error) {
	ctx, span := observability.StartSpan(ctx, "lake.write_parquet",
		attribute.String("lake.location", location),
		attribute.String("lake.run_id", opts.RunID),
	)
	stats, err := s.writer.Write(ctx, f, location, opts)
	span.SetAttributes(attribute.Int("lake.rows", stats.Rows), attribute.Int("lake.files", stats.Files))
	observability.EndSpan(span, err)
	if err != nil {
		return stats, err
	}
	s.log.Info("Table written",
		"location", location,
		"run_id", opts.RunID,
		"rows", stats.Rows,
		"files", stats.Files,
		"partitions", stats.Partitions,
	)
	return stats, nil
}

// FromRows loads rows into the session's engine.
func (s *Session) FromRows(ctx context.Context, schema *frame.Schema, rows []frame.Row) *frame.Frame {
	return s.engine.FromRows(ctx, schema, rows)
}
