package sleepstage

import (
	"sort"
	"time"
)

// FilteredSegments returns the segments whose start is strictly after
// now - windowDays days, sorted by start. Segments straddling the window
// start are not clipped; they are kept or dropped by their start alone.
func FilteredSegments(all []Segment, now time.Time, windowDays int) []Segment {
	windowStart := now.AddDate(0, 0, -windowDays)

	out := make([]Segment, 0, len(all))
	for _, s := range all {
		if s.Start.After(windowStart) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// TotalSleepTime returns the hours spent in asleep stages (generic, deep,
// REM and core). In-bed and awake time is excluded.
func TotalSleepTime(filtered []Segment) float64 {
	var d time.Duration
	for _, s := range filtered {
		if s.Stage.Asleep() {
			d += s.Duration()
		}
	}
	return d.Hours()
}

// AverageSleepTimePerNight divides TotalSleepTime by the number of distinct
// calendar days on which segments start. Days are taken in each start's own
// location. It returns 0 for an empty input.
func AverageSleepTimePerNight(filtered []Segment) float64 {
	days := make(map[[3]int]struct{})
	for _, s := range filtered {
		y, m, d := s.Start.Date()
		days[[3]int{y, int(m), d}] = struct{}{}
	}
	if len(days) == 0 {
		return 0
	}
	return TotalSleepTime(filtered) / float64(len(days))
}

// SleepEfficiency returns 100 * asleep minutes / in-bed minutes, or 0 when
// there is no in-bed time. The result is not clamped and can exceed 100
// when in-bed annotations cover less time than sleep.
func SleepEfficiency(filtered []Segment) float64 {
	var asleep, inBed time.Duration
	for _, s := range filtered {
		switch {
		case s.Stage == StageInBed:
			inBed += s.Duration()
		case s.Stage.Asleep():
			asleep += s.Duration()
		}
	}
	if inBed <= 0 {
		return 0
	}
	return 100 * asleep.Minutes() / inBed.Minutes()
}

// StageDurations sums segment durations per stage.
func StageDurations(filtered []Segment) map[Stage]time.Duration {
	out := make(map[Stage]time.Duration)
	for _, s := range filtered {
		out[s.Stage] += s.Duration()
	}
	return out
}
