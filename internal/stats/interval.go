// Package stats turns tracked time and meetings into daily work figures.
package stats

import (
	"sort"
	"time"
)

// BreakThreshold is the shortest gap between busy intervals counted as a break.
const BreakThreshold = 10 * time.Minute

// Interval is a [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration is End-Start, floored at zero.
func (iv Interval) Duration() time.Duration {
	if d := iv.End.Sub(iv.Start); d > 0 {
		return d
	}
	return 0
}

// Merge sorts ivs by start and coalesces intervals that overlap or touch.
// The input slice is not modified.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := append([]Interval(nil), ivs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Interval{sorted[0]}
	for _, cur := range sorted[1:] {
		last := &out[len(out)-1]
		if cur.Start.After(last.End) {
			out = append(out, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return out
}

// Total sums the durations of ivs.
func Total(ivs []Interval) time.Duration {
	var d time.Duration
	for _, iv := range ivs {
		d += iv.Duration()
	}
	return d
}

// Intersect returns the total overlap of two merged interval lists using a
// two-pointer sweep.
func Intersect(a, b []Interval) time.Duration {
	var total time.Duration
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := maxTime(a[i].Start, b[j].Start)
		end := minTime(a[i].End, b[j].End)
		if end.After(start) {
			total += end.Sub(start)
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return total
}

// Breaks sums the gaps of at least BreakThreshold between consecutive
// merged intervals.
func Breaks(merged []Interval) time.Duration {
	var total time.Duration
	for i := 1; i < len(merged); i++ {
		if gap := merged[i].Start.Sub(merged[i-1].End); gap >= BreakThreshold {
			total += gap
		}
	}
	return total
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
