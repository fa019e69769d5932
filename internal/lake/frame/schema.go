package frame

import (
	"fmt"
	"strings"
	"time"
)

// Type is the logical type of a column. Values held in rows are nil or one
// of string, int64, float64, time.Time matching the column type.
type Type int

const (
	String Type = iota + 1
	Int64
	Float64
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// SQLType is the engine column type backing t.
func (t Type) SQLType() string {
	switch t {
	case String:
		return "VARCHAR"
	case Int64:
		return "BIGINT"
	case Float64:
		return "DOUBLE"
	case Timestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

// Accepts reports whether v may be stored in a column of type t.
func (t Type) Accepts(v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case string:
		return t == String
	case int64:
		return t == Int64
	case float64:
		return t == Float64
	case time.Time:
		return t == Timestamp
	default:
		return false
	}
}

type Field struct {
	Name string
	Type Type
}

type Schema struct {
	fields []Field
	index  map[string]int
}

func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("frame: empty column name")
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrColumnConflict, name)
		}
		s.index[name] = len(s.fields)
		s.fields = append(s.fields, Field{Name: name, Type: f.Type})
	}
	return s, nil
}

// MustSchema is NewSchema for package-level table definitions.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Len() int { return len(s.fields) }

func (s *Schema) Field(i int) Field { return s.fields[i] }

func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

func (s *Schema) lookup(name string) (int, error) {
	i, ok := s.index[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q (have %s)", ErrUnknownColumn, name, strings.Join(s.Names(), ", "))
	}
	return i, nil
}

// Without returns a copy of the schema minus the named columns.
func (s *Schema) Without(names ...string) *Schema {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if !drop[f.Name] {
			kept = append(kept, f)
		}
	}
	return MustSchema(kept...)
}

// Row is one record; position i holds the value of schema field i.
type Row []any
