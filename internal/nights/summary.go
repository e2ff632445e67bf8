package nights

import (
	"math"
	"time"

	"sleepstage-service/internal/sleepstage"
)

// Summary is the aggregate view over a lookback window.
type Summary struct {
	WindowDays                int                `json:"window_days"`
	SegmentCount              int                `json:"segment_count"`
	TotalSleepHours           float64            `json:"total_sleep_hours"`
	AverageSleepHoursPerNight float64            `json:"average_sleep_hours_per_night"`
	SleepEfficiency           float64            `json:"sleep_efficiency"`
	StageMinutes              map[string]float64 `json:"stage_minutes"`
}

// BuildSummary filters segments to the window [now - windowDays, now) and
// computes the aggregates over what remains. An empty input produces a
// zero summary with an empty StageMinutes map.
func BuildSummary(segments []sleepstage.Segment, now time.Time, windowDays int) Summary {
	filtered := sleepstage.FilteredSegments(segments, now, windowDays)

	minutes := make(map[string]float64)
	for st, d := range sleepstage.StageDurations(filtered) {
		minutes[string(st)] = round2(d.Minutes())
	}

	return Summary{
		WindowDays:                windowDays,
		SegmentCount:              len(filtered),
		TotalSleepHours:           round2(sleepstage.TotalSleepTime(filtered)),
		AverageSleepHoursPerNight: round2(sleepstage.AverageSleepTimePerNight(filtered)),
		SleepEfficiency:           round2(sleepstage.SleepEfficiency(filtered)),
		StageMinutes:              minutes,
	}
}

// round2 rounds to two decimal places for display.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
