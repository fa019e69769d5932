package frame

import (
	"fmt"
	"strconv"
	"time"
)

// Column is a projection of a source column, optionally transformed and
// renamed. Columns are resolved against a schema when an operator runs.
type Column struct {
	name string
	bind func(s *Schema, zone string) (expr string, typ Type, err error)
}

func Col(name string) Column {
	return Column{name: name, bind: func(s *Schema, _ string) (string, Type, error) {
		idx, err := s.lookup(name)
		if err != nil {
			return "", 0, err
		}
		return QuoteIdent(name), s.Field(idx).Type, nil
	}}
}

func (c Column) As(alias string) Column {
	c.name = alias
	return c
}

func (c Column) Name() string { return c.name }

// derive wraps c in an engine expression. in is the input type the
// expression accepts.
func (c Column) derive(label string, in, out Type, render func(expr, zone string) string) Column {
	inner := c.bind
	return Column{
		name: fmt.Sprintf("%s(%s)", label, c.name),
		bind: func(s *Schema, zone string) (string, Type, error) {
			expr, typ, err := inner(s, zone)
			if err != nil {
				return "", 0, err
			}
			if typ != in {
				return "", 0, fmt.Errorf("%w: %s needs %s, %q is %s", ErrTypeMismatch, label, in, c.name, typ)
			}
			return render(expr, zone), out, nil
		},
	}
}

// FromUnixMillis converts epoch milliseconds to a timestamp truncated to
// whole seconds (floor, so pre-epoch values round down).
func FromUnixMillis(c Column) Column {
	return c.derive("from_unix_millis", Int64, Timestamp, func(x, _ string) string {
		return fmt.Sprintf("epoch_ms((%[1]s) - (((%[1]s) %% 1000) + 1000) %% 1000)", x)
	})
}

// local shifts a UTC timestamp expression to wall clock in zone.
func local(expr, zone string) string {
	if zone == "UTC" {
		return "(" + expr + ")"
	}
	return fmt.Sprintf("timezone(%s, CAST(%s AS TIMESTAMPTZ))", QuoteString(zone), expr)
}

func timePart(c Column, label, fn string) Column {
	return c.derive(label, Timestamp, Int64, func(x, zone string) string {
		return fmt.Sprintf("CAST(%s(%s) AS BIGINT)", fn, local(x, zone))
	})
}

func Hour(c Column) Column { return timePart(c, "hour", "hour") }

func DayOfMonth(c Column) Column { return timePart(c, "dayofmonth", "dayofmonth") }

// WeekOfYear is the ISO-8601 week number.
func WeekOfYear(c Column) Column { return timePart(c, "weekofyear", "weekofyear") }

func Month(c Column) Column { return timePart(c, "month", "month") }

func Year(c Column) Column { return timePart(c, "year", "year") }

// DayOfWeek numbers days Sunday=1 through Saturday=7.
func DayOfWeek(c Column) Column {
	return c.derive("dayofweek", Timestamp, Int64, func(x, zone string) string {
		return fmt.Sprintf("CAST(dayofweek(%s) + 1 AS BIGINT)", local(x, zone))
	})
}

// Condition is a row predicate over one column.
type Condition struct {
	bind func(s *Schema, zone string) (string, error)
}

// Eq matches rows whose value equals want. Nulls never match.
func (c Column) Eq(want any) Condition {
	return Condition{bind: func(s *Schema, zone string) (string, error) {
		expr, _, err := c.bind(s, zone)
		if err != nil {
			return "", err
		}
		lit, err := Literal(want)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s) = %s", expr, lit), nil
	}}
}

func (c Column) IsNotNull() Condition {
	return c.nullTest("IS NOT NULL")
}

func (c Column) IsNull() Condition {
	return c.nullTest("IS NULL")
}

func (c Column) nullTest(op string) Condition {
	return Condition{bind: func(s *Schema, zone string) (string, error) {
		expr, _, err := c.bind(s, zone)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s) %s", expr, op), nil
	}}
}

// Literal renders a Go value as a SQL literal.
func Literal(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return QuoteString(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float32:
		return literalFloat(float64(t)), nil
	case float64:
		return literalFloat(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	case time.Time:
		return "TIMESTAMP " + QuoteString(t.UTC().Format("2006-01-02 15:04:05.999999")), nil
	default:
		return "", fmt.Errorf("%w: unsupported literal %T", ErrTypeMismatch, v)
	}
}

func literalFloat(f float64) string {
	return "CAST(" + QuoteString(strconv.FormatFloat(f, 'g', -1, 64)) + " AS DOUBLE)"
}
