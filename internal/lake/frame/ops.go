package frame

import (
	"fmt"
	"strings"
)

func (f *Frame) Select(cols ...Column) *Frame {
	if f.err != nil {
		return f
	}
	exprs := make([]string, len(cols))
	fields := make([]Field, len(cols))
	for i, c := range cols {
		expr, typ, err := c.bind(f.schema, f.eng.zone)
		if err != nil {
			return f.fail(err)
		}
		exprs[i] = expr + " AS " + QuoteIdent(c.Name())
		fields[i] = Field{Name: c.Name(), Type: typ}
	}
	schema, err := NewSchema(fields...)
	if err != nil {
		return f.fail(err)
	}
	return f.derive(schema, fmt.Sprintf("SELECT %s FROM (%s) AS _t", strings.Join(exprs, ", "), f.query))
}

// WithColumn appends c, or replaces the existing column of the same name.
func (f *Frame) WithColumn(c Column) *Frame {
	if f.err != nil {
		return f
	}
	cols := make([]Column, 0, f.schema.Len()+1)
	replaced := false
	for _, name := range f.schema.Names() {
		if name == c.Name() {
			cols = append(cols, c)
			replaced = true
			continue
		}
		cols = append(cols, Col(name))
	}
	if !replaced {
		cols = append(cols, c)
	}
	return f.Select(cols...)
}

// Where keeps rows satisfying every condition.
func (f *Frame) Where(conds ...Condition) *Frame {
	if f.err != nil || len(conds) == 0 {
		return f
	}
	preds := make([]string, len(conds))
	for i, c := range conds {
		p, err := c.bind(f.schema, f.eng.zone)
		if err != nil {
			return f.fail(err)
		}
		preds[i] = p
	}
	return f.filter(strings.Join(preds, " AND "))
}

func (f *Frame) filter(pred string) *Frame {
	return f.derive(f.schema, fmt.Sprintf("SELECT * FROM (%s) AS _t WHERE %s", f.query, pred))
}

// DropNulls removes rows with a null in any of cols (all columns if none).
func (f *Frame) DropNulls(cols ...string) *Frame {
	if f.err != nil {
		return f
	}
	if len(cols) == 0 {
		cols = f.schema.Names()
	}
	if len(cols) == 0 {
		return f
	}
	quoted, err := f.quoted(cols)
	if err != nil {
		return f.fail(err)
	}
	preds := make([]string, len(quoted))
	for i, q := range quoted {
		preds[i] = q + " IS NOT NULL"
	}
	return f.filter(strings.Join(preds, " AND "))
}

// DropDuplicates keeps one row for each distinct value of cols (the full
// row if none). With cols, the kept row is the lowest by the full column
// order, so the choice does not depend on scan order.
func (f *Frame) DropDuplicates(cols ...string) *Frame {
	if f.err != nil {
		return f
	}
	if len(cols) == 0 {
		return f.derive(f.schema, fmt.Sprintf("SELECT DISTINCT * FROM (%s) AS _t", f.query))
	}
	keys, err := f.quoted(cols)
	if err != nil {
		return f.fail(err)
	}
	all, _ := f.quoted(f.schema.Names())
	return f.derive(f.schema, fmt.Sprintf(
		"SELECT * FROM (%s) AS _t QUALIFY row_number() OVER (PARTITION BY %s ORDER BY %s) = 1",
		f.query, strings.Join(keys, ", "), ascNullsFirst(all),
	))
}

// OrderBy sorts ascending, nulls first. The order holds for Rows and for
// written part files as long as no other operator follows.
func (f *Frame) OrderBy(cols ...string) *Frame {
	if f.err != nil || len(cols) == 0 {
		return f
	}
	quoted, err := f.quoted(cols)
	if err != nil {
		return f.fail(err)
	}
	return f.derive(f.schema, fmt.Sprintf("SELECT * FROM (%s) AS _t ORDER BY %s", f.query, ascNullsFirst(quoted)))
}

// WithMonotonicID appends an int64 column numbering rows from 0 in scan
// order. Ids are unique within one evaluation; Materialize first when the
// same ids must be seen by more than one read.
func (f *Frame) WithMonotonicID(name string) *Frame {
	if f.err != nil {
		return f
	}
	fields := append(f.schema.Fields(), Field{Name: name, Type: Int64})
	schema, err := NewSchema(fields...)
	if err != nil {
		return f.fail(err)
	}
	return f.derive(schema, fmt.Sprintf(
		"SELECT *, CAST(row_number() OVER () - 1 AS BIGINT) AS %s FROM (%s) AS _t", QuoteIdent(name), f.query,
	))
}

// LeftJoin keeps every row of f. Each is extended with the columns of every
// right row whose rightCol equals its leftCol, or with nulls when there is
// no match. Null keys never match.
func (f *Frame) LeftJoin(right *Frame, leftCol, rightCol string) *Frame {
	if f.err != nil {
		return f
	}
	if right == nil {
		return f.fail(fmt.Errorf("frame: left join: nil right frame"))
	}
	if right.err != nil {
		return f.fail(fmt.Errorf("frame: left join: right side: %w", right.err))
	}
	if right.eng != f.eng {
		return f.fail(fmt.Errorf("frame: left join: frames belong to different engines"))
	}
	li, err := f.schema.lookup(leftCol)
	if err != nil {
		return f.fail(err)
	}
	ri, err := right.schema.lookup(rightCol)
	if err != nil {
		return f.fail(err)
	}
	if lt, rt := f.schema.Field(li).Type, right.schema.Field(ri).Type; lt != rt {
		return f.fail(fmt.Errorf("%w: join key %q is %s, %q is %s", ErrTypeMismatch, leftCol, lt, rightCol, rt))
	}
	schema, err := NewSchema(append(f.schema.Fields(), right.schema.Fields()...)...)
	if err != nil {
		return f.fail(err)
	}
	return f.derive(schema, fmt.Sprintf(
		"SELECT _l.*, _r.* FROM (%s) AS _l LEFT JOIN (%s) AS _r ON _l.%s = _r.%s",
		f.query, right.query, QuoteIdent(leftCol), QuoteIdent(rightCol),
	))
}

func (f *Frame) quoted(cols []string) ([]string, error) {
	out := make([]string, len(cols))
	for i, c := range cols {
		if _, err := f.schema.lookup(c); err != nil {
			return nil, err
		}
		out[i] = QuoteIdent(c)
	}
	return out, nil
}

func ascNullsFirst(quoted []string) string {
	terms := make([]string, len(quoted))
	for i, q := range quoted {
		terms[i] = q + " ASC NULLS FIRST"
	}
	return strings.Join(terms, ", ")
}
