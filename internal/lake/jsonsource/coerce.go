package jsonsource

import (
	"math"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/yungbote/lakeflow/internal/lake/frame"
)

// Coerce converts a JSON value to the Go representation of typ, or nil when
// the value cannot be represented. Strings accept any scalar; numbers keep
// their literal text.
func Coerce(v gjson.Result, typ frame.Type) any {
	if v.Type == gjson.Null || !v.Exists() {
		return nil
	}
	switch typ {
	case frame.String:
		switch v.Type {
		case gjson.String:
			return v.Str
		default:
			return v.Raw
		}
	case frame.Int64:
		if v.Type != gjson.Number {
			return nil
		}
		n, ok := integral(v)
		if !ok {
			return nil
		}
		return n
	case frame.Float64:
		if v.Type != gjson.Number {
			return nil
		}
		return v.Num
	case frame.Timestamp:
		switch v.Type {
		case gjson.String:
			t, err := time.Parse(time.RFC3339Nano, v.Str)
			if err != nil {
				return nil
			}
			return t.UTC()
		case gjson.Number:
			n, ok := integral(v)
			if !ok {
				return nil
			}
			return time.Unix(n, 0).UTC()
		}
	}
	return nil
}

// integral accepts 42, 42.0 and 4.2e1 alike. Fractional values and values
// outside the int64 range are rejected.
func integral(v gjson.Result) (int64, bool) {
	if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
		return n, true
	}
	f := v.Num
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	// 2^63 is exactly representable; anything at or above it overflows.
	if f < -9223372036854775808.0 || f >= 9223372036854775808.0 {
		return 0, false
	}
	return int64(f), true
}
