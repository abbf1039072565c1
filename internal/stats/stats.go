// Package stats provides the numeric primitives used by the speed test
// engine: median, percentile with linear interpolation, jitter, and
// bandwidth arithmetic.
//
// All functions that can be undefined for a given input (empty slice,
// out-of-range percentile, too few samples) return an ok bool instead of
// a sentinel value.
package stats

import (
	"math"
	"sort"
)

// Median returns the median of values.
//
// For odd-length input this is the middle element of the sorted order,
// found via quickselect rather than a full sort. For even-length input it
// is the average of the two middle elements. The input slice is not
// modified. Returns ok=false for empty input.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}

	work := make([]float64, n)
	copy(work, values)

	mid := n / 2
	upper := quickselect(work, mid)

	if n%2 == 1 {
		return upper, true
	}

	// After selection everything left of mid is <= work[mid], so the
	// lower middle element is the maximum of that prefix.
	lower := work[0]
	for _, v := range work[1:mid] {
		if v > lower {
			lower = v
		}
	}
	return (lower + upper) / 2, true
}

// quickselect partially orders work so that work[k] holds the k-th
// smallest element, with all smaller elements to its left. Average O(n).
func quickselect(work []float64, k int) float64 {
	lo, hi := 0, len(work)-1
	for lo < hi {
		p := partition(work, lo, hi)
		switch {
		case p == k:
			return work[k]
		case p < k:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
	return work[k]
}

func partition(work []float64, lo, hi int) int {
	// Median-of-three pivot avoids quadratic behavior on sorted input.
	mid := lo + (hi-lo)/2
	if work[mid] < work[lo] {
		work[mid], work[lo] = work[lo], work[mid]
	}
	if work[hi] < work[lo] {
		work[hi], work[lo] = work[lo], work[hi]
	}
	if work[hi] < work[mid] {
		work[hi], work[mid] = work[mid], work[hi]
	}
	pivot := work[mid]
	work[mid], work[hi] = work[hi], work[mid]

	i := lo
	for j := lo; j < hi; j++ {
		if work[j] < pivot {
			work[i], work[j] = work[j], work[i]
			i++
		}
	}
	work[i], work[hi] = work[hi], work[i]
	return i
}

// Percentile returns the p-th percentile of values using linear
// interpolation at position (n-1)*p of the sorted order.
//
// p must be in [0, 1]. p=0 and p=1 return the minimum and maximum
// directly; a single-element input returns that element for any valid p.
// The input slice is not modified. Returns ok=false for empty input or
// p outside [0, 1].
func Percentile(values []float64, p float64) (float64, bool) {
	n := len(values)
	if n == 0 || p < 0 || p > 1 {
		return 0, false
	}
	if n == 1 {
		return values[0], true
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if p == 0 {
		return sorted[0], true
	}
	if p == 1 {
		return sorted[n-1], true
	}

	pos := float64(n-1) * p
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower], true
	}

	frac := pos - math.Floor(pos)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower]), true
}

// Jitter returns the mean absolute difference between consecutive
// samples, in the order given. Reversing the input yields the same
// result. Returns ok=false for fewer than 2 samples.
func Jitter(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}

	var sum float64
	for i := 1; i < len(values); i++ {
		sum += math.Abs(values[i] - values[i-1])
	}
	return sum / float64(len(values)-1), true
}

// BandwidthBps converts a transfer of bytes over the given wall-clock
// duration (seconds) into bits per second, after subtracting the
// server's own processing time (seconds). Returns 0 when
// duration <= serverTime, since no meaningful network transfer time
// remains.
func BandwidthBps(bytes int64, duration, serverTime float64) float64 {
	transfer := duration - serverTime
	if transfer <= 0 {
		return 0
	}
	return float64(bytes) * 8 / transfer
}

// SpeedMbps converts bits per second to megabits per second.
func SpeedMbps(bps float64) float64 {
	return bps / 1_000_000
}
