package module

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Coerce normalises the present keys of values to the declared field types
// and returns values. It never fails: an unparseable number becomes NaN and
// is left for the storage layer to reject.
//
// Keys absent from the payload stay absent so that update projections and
// column defaults keep working.
func Coerce(values Values, fields []Field) Values {
	if values == nil {
		return values
	}
	for _, f := range fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		switch f.Type {
		case String:
			values[f.Name] = coerceString(v)
		case Number:
			values[f.Name] = coerceNumber(v)
		case Boolean:
			b, _ := v.(bool)
			values[f.Name] = b
		}
	}
	return values
}

func coerceString(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}

func coerceNumber(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			if t == "" {
				return nil
			}
			return int64(0)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return normalizeNumber(f)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN()
		}
		return normalizeNumber(f)
	case float64:
		return normalizeNumber(t)
	case float32:
		return normalizeNumber(float64(t))
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return math.NaN()
	}
}

// integral numbers are stored as int64 so integer columns accept them.
func normalizeNumber(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// IsInvalidNumber reports whether v is the NaN sentinel produced by Coerce.
func IsInvalidNumber(v any) bool {
	f, ok := v.(float64)
	return ok && (math.IsNaN(f) || math.IsInf(f, 0))
}
