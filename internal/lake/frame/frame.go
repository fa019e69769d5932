// Package frame is a declarative relational builder over an embedded
// DuckDB engine. A Frame is a schema plus a query; operators compose a new
// query without running anything, and Rows, Count and Materialize execute
// it. The first failing operator poisons the frame and every later operator
// passes the error through.
package frame

import (
	"context"
	"fmt"
	"time"
)

type Frame struct {
	eng    *Engine
	schema *Schema
	query  string
	// table is set when the frame reads a whole engine table.
	table string
	err   error
}

func (f *Frame) Err() error { return f.err }

func (f *Frame) Schema() *Schema { return f.schema }

func (f *Frame) Engine() *Engine { return f.eng }

// SQL is the query the frame evaluates to.
func (f *Frame) SQL() string { return f.query }

func (f *Frame) derive(schema *Schema, query string) *Frame {
	return &Frame{eng: f.eng, schema: schema, query: query}
}

func (f *Frame) fail(err error) *Frame {
	return &Frame{eng: f.eng, schema: f.schema, err: err}
}

func (f *Frame) Rows(ctx context.Context) ([]Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows, err := f.eng.db.QueryContext(ctx, f.query)
	if err != nil {
		return nil, fmt.Errorf("frame: query: %w", err)
	}
	defer rows.Close()

	n := f.schema.Len()
	var out []Row
	for rows.Next() {
		r := make(Row, n)
		dest := make([]any, n)
		for i := range r {
			dest[i] = &r[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("frame: scan: %w", err)
		}
		for i, v := range r {
			r[i] = normalizeValue(v)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("frame: query: %w", err)
	}
	return out, nil
}

func (f *Frame) Count(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	if err := f.eng.db.QueryRowContext(ctx, "SELECT count(*) FROM ("+f.query+") AS _t").Scan(&n); err != nil {
		return 0, fmt.Errorf("frame: count: %w", err)
	}
	return int(n), nil
}

// Materialize evaluates f once into an engine table. Later reads of the
// result see the same rows, including generated ids.
func (f *Frame) Materialize(ctx context.Context) *Frame {
	if f.err != nil {
		return f
	}
	if f.table != "" {
		return f
	}
	table := f.eng.nextTable()
	if err := f.eng.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS %s", QuoteIdent(table), f.query)); err != nil {
		return f.fail(fmt.Errorf("frame: materialize: %w", err))
	}
	return f.eng.newFrame(f.schema, "SELECT * FROM "+QuoteIdent(table), table)
}

// Drop releases the engine table behind a materialized frame. Frames not
// backed by a table are left alone.
func (f *Frame) Drop(ctx context.Context) error {
	if f.table == "" {
		return nil
	}
	return f.eng.Exec(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(f.table))
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}
