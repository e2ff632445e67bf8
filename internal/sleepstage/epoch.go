package sleepstage

import (
	"math"
	"sort"
	"time"
)

// DefaultEpochWidth is the width of one classification epoch.
const DefaultEpochWidth = 30 * time.Second

// BuildEpochs partitions [rangeStart, rangeEnd) into contiguous epochs of
// width epochWidth (the last one truncated at rangeEnd) and aggregates the
// sample streams into each of them. An empty or inverted range yields no
// epochs. The input slices are not modified.
//
// When annotations overlap, the first one in input order that covers an
// epoch's start wins.
func BuildEpochs(
	annotations []Annotation,
	heartRate, hrv []Sample,
	motion []MotionSample,
	rangeStart, rangeEnd time.Time,
	epochWidth time.Duration,
) []Epoch {
	if !rangeStart.Before(rangeEnd) {
		return nil
	}
	if epochWidth <= 0 {
		epochWidth = DefaultEpochWidth
	}

	hrSorted := sortedSamples(heartRate)
	hrvSorted := sortedSamples(hrv)
	motionSorted := sortedMotion(motion)

	epochs := make([]Epoch, 0, epochCapacity(rangeEnd.Sub(rangeStart), epochWidth))

	for t := rangeStart; t.Before(rangeEnd); t = t.Add(epochWidth) {
		end := t.Add(epochWidth)
		if end.After(rangeEnd) {
			end = rangeEnd
		}

		e := Epoch{
			Start:            t,
			End:              end,
			AverageHeartRate: meanInWindow(hrSorted, t, end),
			AverageHRV:       meanInWindow(hrvSorted, t, end),
			MotionLevel:      maxMotionInWindow(motionSorted, t, end),
			OfficialStage:    officialStageAt(annotations, t),
		}

		if e.OfficialStage == nil && e.AverageHeartRate != nil {
			hrvValue := math.NaN()
			if e.AverageHRV != nil {
				hrvValue = *e.AverageHRV
			}
			st := Classify(*e.AverageHeartRate, hrvValue, e.MotionLevel)
			e.InferredStage = &st
		}

		epochs = append(epochs, e)
	}
	return epochs
}

// maxPrealloc bounds the capacity hint; longer ranges grow by append.
const maxPrealloc = 1 << 16

// epochCapacity returns ceil(span/width) capped at maxPrealloc. span may be
// saturated by time.Time.Sub for very long ranges, so it never adds to span.
func epochCapacity(span, width time.Duration) int {
	n := span / width
	if span%width != 0 {
		n++
	}
	if n > maxPrealloc {
		return maxPrealloc
	}
	return int(n)
}

func officialStageAt(annotations []Annotation, t time.Time) *Stage {
	for _, a := range annotations {
		if a.Covers(t) {
			st := a.Stage
			return &st
		}
	}
	return nil
}

func sortedSamples(in []Sample) []Sample {
	out := make([]Sample, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func sortedMotion(in []MotionSample) []MotionSample {
	out := make([]MotionSample, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// window returns the half-open index range of samples with timestamps in
// [from, to). at(i) must be non-decreasing in i.
func window(n int, at func(int) time.Time, from, to time.Time) (lo, hi int) {
	lo = sort.Search(n, func(i int) bool { return !at(i).Before(from) })
	hi = sort.Search(n, func(i int) bool { return !at(i).Before(to) })
	return lo, hi
}

func meanInWindow(samples []Sample, from, to time.Time) *float64 {
	lo, hi := window(len(samples), func(i int) time.Time { return samples[i].Timestamp }, from, to)
	if lo >= hi {
		return nil
	}
	sum := 0.0
	for _, s := range samples[lo:hi] {
		sum += s.Value
	}
	mean := sum / float64(hi-lo)
	return &mean
}

func maxMotionInWindow(samples []MotionSample, from, to time.Time) int {
	lo, hi := window(len(samples), func(i int) time.Time { return samples[i].Timestamp }, from, to)
	level := MotionStill
	for _, s := range samples[lo:hi] {
		if s.Level > level {
			level = s.Level
		}
	}
	return level
}
