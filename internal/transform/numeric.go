// Package transform holds the stateless per-message transforms applied to sensor readings.
package transform

import (
	"encoding/json"
	"math"
	"strconv"
)

// ToFloat reports the numeric value of v. Booleans and strings are not numeric.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int8:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint8:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Non-finite results are reported as these strings, the way a spreadsheet shows them.
const (
	PosInfinity = "Infinity"
	NegInfinity = "-Infinity"
)

// Double multiplies numeric values by two, keeping their type. Booleans count as
// 0 and 1 and come back as ints. Anything else is returned as is.
// A float that overflows comes back as PosInfinity or NegInfinity so the reply
// still encodes as JSON.
func Double(v any) any {
	switch x := v.(type) {
	case float64:
		return finite(x * 2)
	case float32:
		return finite32(x * 2)
	case bool:
		if x {
			return 2
		}
		return 0
	case int:
		return x * 2
	case int64:
		return x * 2
	case int32:
		return x * 2
	case int16:
		return x * 2
	case int8:
		return x * 2
	case uint:
		return x * 2
	case uint64:
		return x * 2
	case uint32:
		return x * 2
	case uint16:
		return x * 2
	case uint8:
		return x * 2
	case json.Number:
		if i, err := x.Int64(); err == nil && i <= math.MaxInt64/2 && i >= math.MinInt64/2 {
			return json.Number(strconv.FormatInt(i*2, 10))
		}
		if f, err := x.Float64(); err == nil {
			return finite(f * 2)
		}
		return x
	default:
		return v
	}
}

func finite(f float64) any {
	switch {
	case math.IsInf(f, 1):
		return PosInfinity
	case math.IsInf(f, -1):
		return NegInfinity
	}
	return f
}

func finite32(f float32) any {
	if math.IsInf(float64(f), 0) {
		return finite(float64(f))
	}
	return f
}
