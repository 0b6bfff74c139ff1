// Package timeslot holds the interval arithmetic every conflict decision in
// the platform goes through. There is exactly one overlap predicate; callers
// must not re-derive the comparison inline.
package timeslot

import "time"

// MinSlotStep is the smallest spacing between offered slot starts.
const MinSlotStep = 30 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Back-to-back intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// OverlapsAny reports whether [start, end) overlaps any of the busy intervals.
func OverlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// Step returns the spacing between candidate slot starts for a service of the
// given duration: the duration itself, floored at MinSlotStep.
func Step(duration time.Duration) time.Duration {
	if duration > MinSlotStep {
		return duration
	}
	return MinSlotStep
}

// AvailableSlots returns the start times within [windowStart, windowEnd) where
// a booking of the given duration fits without overlapping any busy interval.
// Candidates advance by Step(duration) from windowStart and stop once the
// booking would run past windowEnd; starts before now are skipped.
//
// All times must share a location.
func AvailableSlots(windowStart, windowEnd time.Time, duration time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || !windowEnd.After(windowStart) {
		return nil
	}

	step := Step(duration)
	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !OverlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}
