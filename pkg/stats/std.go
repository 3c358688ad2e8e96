// Package stats holds small numeric helpers shared by the scoring code.
package stats

import (
	"cmp"
	"math"
)

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type Float interface {
	~float32 | ~float64
}

// Returns the mean of the given samples.
// The caller must ensure that samples is not empty.
func Mean[T Float | Integer](samples []T) float64 {
	sum := 0.0
	for _, v := range samples {
		sum += float64(v)
	}
	return sum / float64(len(samples))
}

func Clamp[T cmp.Ordered](v, low, high T) T {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// Round to the given number of decimal places, with halves rounded away from zero.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
