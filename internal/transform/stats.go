package transform

import (
	"math"

	"github.com/lucaslui/hems/gait-processor/internal/model"
)

// ComputeStats returns mean, max and min over the numeric values of readings.
// Non-numeric entries are skipped; with no numeric entries every field is zero.
func ComputeStats(readings map[string]any) model.Stats {
	var (
		sum    float64
		count  int
		lo, hi float64
	)
	for _, v := range readings {
		f, ok := ToFloat(v)
		if !ok {
			continue
		}
		if count == 0 || f > hi {
			hi = f
		}
		if count == 0 || f < lo {
			lo = f
		}
		sum += f
		count++
	}
	if count == 0 {
		return model.Stats{}
	}
	return model.Stats{Average: mean(readings, sum, count), Max: hi, Min: lo}
}

// mean divides the plain sum when it is finite. Near the float64 limit the sum
// overflows, so each value is scaled by 1/count before adding instead.
func mean(readings map[string]any, sum float64, count int) float64 {
	n := float64(count)
	if !math.IsInf(sum, 0) && !math.IsNaN(sum) {
		return sum / n
	}
	var scaled float64
	for _, v := range readings {
		if f, ok := ToFloat(v); ok {
			scaled += f / n
		}
	}
	return scaled
}

// NumericCount is the number of entries ComputeStats would use.
func NumericCount(readings map[string]any) int {
	n := 0
	for _, v := range readings {
		if _, ok := ToFloat(v); ok {
			n++
		}
	}
	return n
}
