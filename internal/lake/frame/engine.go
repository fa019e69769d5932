package frame

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/duckdb/duckdb-go/v2"
)

var (
	ErrUnknownColumn  = errors.New("frame: unknown column")
	ErrColumnConflict = errors.New("frame: column name conflict")
	ErrTypeMismatch   = errors.New("frame: type mismatch")
)

const defaultWorkers = 8

type options struct {
	workers int
	loc     *time.Location
}

type Option func(*options)

// WithWorkers bounds the engine's worker threads.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLocation sets the zone used by the time-part functions. The zone must
// have an IANA name.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// Engine is an in-memory DuckDB database. Frames built from it are queries
// against its tables; every connection runs with TimeZone UTC so stored
// timestamps are UTC wall clock.
type Engine struct {
	db   *sql.DB
	zone string
	seq  atomic.Int64
}

func Open(opts ...Option) (*Engine, error) {
	o := options{workers: defaultWorkers, loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	zone := o.loc.String()
	if zone == "" || zone == "Local" {
		return nil, fmt.Errorf("frame: zone %q has no IANA name", zone)
	}

	setup := []string{
		"SET TimeZone = 'UTC'",
		fmt.Sprintf("SET threads = %d", o.workers),
	}
	connector, err := duckdb.NewConnector("", func(execer driver.ExecerContext) error {
		for _, stmt := range setup {
			if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
				return fmt.Errorf("%s: %w", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("frame: open engine: %w", err)
	}
	e := &Engine{db: sql.OpenDB(connector), zone: zone}

	if zone != "UTC" {
		var t time.Time
		q := "SELECT timezone(" + QuoteString(zone) + ", TIMESTAMPTZ '2000-01-01 00:00:00+00')"
		if err := e.db.QueryRow(q).Scan(&t); err != nil {
			_ = e.db.Close()
			return nil, fmt.Errorf("frame: zone %q: %w", zone, err)
		}
	}
	return e, nil
}

func (e *Engine) Close() error { return e.db.Close() }

// Zone is the IANA name the time-part functions evaluate in.
func (e *Engine) Zone() string { return e.zone }

// Exec runs a statement that returns no rows.
func (e *Engine) Exec(ctx context.Context, stmt string) error {
	_, err := e.db.ExecContext(ctx, stmt)
	return err
}

// Columns reports the output column names of query without running it.
func (e *Engine) Columns(ctx context.Context, query string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, "SELECT * FROM ("+query+") AS _t LIMIT 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.Columns()
}

func (e *Engine) nextTable() string {
	return fmt.Sprintf("frame_%d", e.seq.Add(1))
}

func (e *Engine) newFrame(schema *Schema, query, table string) *Frame {
	return &Frame{eng: e, schema: schema, query: query, table: table}
}

func (e *Engine) poisoned(schema *Schema, err error) *Frame {
	return &Frame{eng: e, schema: schema, err: err}
}

// FromRows loads rows into a new engine table.
func (e *Engine) FromRows(ctx context.Context, schema *Schema, rows []Row) *Frame {
	if schema == nil {
		return e.poisoned(nil, errors.New("frame: nil schema"))
	}
	if err := validateRows(schema, rows); err != nil {
		return e.poisoned(schema, err)
	}
	table := e.nextTable()
	if err := e.Exec(ctx, createTable(table, schema)); err != nil {
		return e.poisoned(schema, fmt.Errorf("frame: create %s: %w", table, err))
	}
	if err := e.appendRows(ctx, table, rows); err != nil {
		return e.poisoned(schema, fmt.Errorf("frame: load %s: %w", table, err))
	}
	return e.newFrame(schema, "SELECT * FROM "+QuoteIdent(table), table)
}

func (e *Engine) appendRows(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		a, err := duckdb.NewAppenderFromConn(dc, "", table)
		if err != nil {
			return err
		}
		values := make([]driver.Value, 0, 16)
		for _, r := range rows {
			values = values[:0]
			for _, v := range r {
				values = append(values, v)
			}
			if err := a.AppendRow(values...); err != nil {
				_ = a.Close()
				return err
			}
		}
		return a.Close()
	})
}

// FromQuery materializes query, cast to schema, into a new engine table.
// The query must produce every schema column by name.
func (e *Engine) FromQuery(ctx context.Context, schema *Schema, query string) *Frame {
	if schema == nil {
		return e.poisoned(nil, errors.New("frame: nil schema"))
	}
	table := e.nextTable()
	stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM (%s) AS _t", QuoteIdent(table), castList(schema), query)
	if err := e.Exec(ctx, stmt); err != nil {
		return e.poisoned(schema, fmt.Errorf("frame: materialize %s: %w", table, err))
	}
	return e.newFrame(schema, "SELECT * FROM "+QuoteIdent(table), table)
}

// Empty is a frame with schema and no rows.
func (e *Engine) Empty(schema *Schema) *Frame {
	if schema == nil {
		return e.poisoned(nil, errors.New("frame: nil schema"))
	}
	cols := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		cols[i] = fmt.Sprintf("CAST(NULL AS %s) AS %s", f.Type.SQLType(), QuoteIdent(f.Name))
	}
	return e.newFrame(schema, "SELECT "+strings.Join(cols, ", ")+" WHERE false", "")
}

func validateRows(schema *Schema, rows []Row) error {
	for i, r := range rows {
		if len(r) != schema.Len() {
			return fmt.Errorf("frame: row %d has %d values, schema has %d", i, len(r), schema.Len())
		}
		for j, v := range r {
			if f := schema.Field(j); !f.Type.Accepts(v) {
				return fmt.Errorf("%w: column %q is %s, got %T", ErrTypeMismatch, f.Name, f.Type, v)
			}
		}
	}
	return nil
}

func createTable(table string, schema *Schema) string {
	cols := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		cols[i] = QuoteIdent(f.Name) + " " + f.Type.SQLType()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(table), strings.Join(cols, ", "))
}

func castList(schema *Schema) string {
	cols := make([]string, schema.Len())
	for i, f := range schema.Fields() {
		q := QuoteIdent(f.Name)
		cols[i] = fmt.Sprintf("CAST(%s AS %s) AS %s", q, f.Type.SQLType(), q)
	}
	return strings.Join(cols, ", ")
}

// QuoteIdent quotes a column or table name.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString renders s as a SQL string literal.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
