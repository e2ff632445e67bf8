package nights

import (
	"errors"
	"fmt"
	"time"

	"sleepstage-service/internal/sleepstage"
)

// NightID uniquely identifies one recorded night.
type NightID string

// SampleBatch is a chunk of already-fetched sensor data for a night.
// This also matches the JSON payload accepted by the ingestion endpoints.
type SampleBatch struct {
	Annotations []sleepstage.Annotation   `json:"annotations,omitempty"`
	HeartRate   []sleepstage.Sample       `json:"heart_rate,omitempty"`
	HRV         []sleepstage.Sample       `json:"hrv,omitempty"`
	Motion      []sleepstage.MotionSample `json:"motion,omitempty"`

	// Optional recording window. When both are set they replace the
	// night's stored range.
	RangeStart *time.Time `json:"range_start,omitempty"`
	RangeEnd   *time.Time `json:"range_end,omitempty"`
}

// ErrInvalidBatch is returned for batches that fail validation.
var ErrInvalidBatch = errors.New("invalid sample batch")

// Timestamps outside [MinTimestampYear, MaxTimestampYear] are rejected. An
// omitted timestamp decodes to year 1 and would stretch the staging range,
// and years past 9999 cannot be encoded as RFC 3339 by the stores.
const (
	MinTimestampYear = 1970
	MaxTimestampYear = 9999
)

func validTimestamp(t time.Time) bool {
	y := t.UTC().Year()
	return y >= MinTimestampYear && y <= MaxTimestampYear
}

// Validate checks value domains and timestamps. Range ordering is not
// checked here: an inverted range stages to an empty timeline.
func (b SampleBatch) Validate() error {
	for i, s := range b.HeartRate {
		if !validTimestamp(s.Timestamp) {
			return fmt.Errorf("%w: heart_rate[%d] has missing or out-of-range timestamp", ErrInvalidBatch, i)
		}
		if s.Value < 0 {
			return fmt.Errorf("%w: heart_rate[%d] is negative", ErrInvalidBatch, i)
		}
	}
	for i, s := range b.HRV {
		if !validTimestamp(s.Timestamp) {
			return fmt.Errorf("%w: hrv[%d] has missing or out-of-range timestamp", ErrInvalidBatch, i)
		}
		if s.Value < 0 {
			return fmt.Errorf("%w: hrv[%d] is negative", ErrInvalidBatch, i)
		}
	}
	for i, m := range b.Motion {
		if !validTimestamp(m.Timestamp) {
			return fmt.Errorf("%w: motion[%d] has missing or out-of-range timestamp", ErrInvalidBatch, i)
		}
		if m.Level < sleepstage.MotionStill || m.Level > sleepstage.MotionSignificant {
			return fmt.Errorf("%w: motion[%d] level %d out of range", ErrInvalidBatch, i, m.Level)
		}
	}
	for i, a := range b.Annotations {
		if !a.Stage.Valid() {
			return fmt.Errorf("%w: annotations[%d] has unknown stage %q", ErrInvalidBatch, i, a.Stage)
		}
		if !validTimestamp(a.Start) || !validTimestamp(a.End) {
			return fmt.Errorf("%w: annotations[%d] has missing or out-of-range bounds", ErrInvalidBatch, i)
		}
		if !a.Start.Before(a.End) {
			return fmt.Errorf("%w: annotations[%d] ends before it starts", ErrInvalidBatch, i)
		}
	}
	if (b.RangeStart == nil) != (b.RangeEnd == nil) {
		return fmt.Errorf("%w: range_start and range_end must be set together", ErrInvalidBatch)
	}
	if b.RangeStart != nil && (!validTimestamp(*b.RangeStart) || !validTimestamp(*b.RangeEnd)) {
		return fmt.Errorf("%w: range_start or range_end out of range", ErrInvalidBatch)
	}
	return nil
}

// Size returns the number of samples and annotations in the batch.
func (b SampleBatch) Size() int {
	return len(b.Annotations) + len(b.HeartRate) + len(b.HRV) + len(b.Motion)
}

// Night is the stored state of one night: everything ingested so far and the
// most recent staging result.
type Night struct {
	ID        NightID     `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Samples   SampleBatch `json:"samples"`

	Segments []sleepstage.Segment `json:"segments,omitempty"`
	StagedAt *time.Time           `json:"staged_at,omitempty"`

	// Revision increases on every ingestion. A staging result is only
	// stored if the revision it was computed from is still current.
	Revision uint64 `json:"revision"`
}

// Staged reports whether the night has been run through the engine.
func (n *Night) Staged() bool {
	return n.StagedAt != nil
}

// append merges b into the night's samples. Ingesting new data invalidates
// any previous staging result.
func (n *Night) append(b SampleBatch) {
	n.Samples.Annotations = append(n.Samples.Annotations, b.Annotations...)
	n.Samples.HeartRate = append(n.Samples.HeartRate, b.HeartRate...)
	n.Samples.HRV = append(n.Samples.HRV, b.HRV...)
	n.Samples.Motion = append(n.Samples.Motion, b.Motion...)
	if b.RangeStart != nil && b.RangeEnd != nil {
		start, end := *b.RangeStart, *b.RangeEnd
		n.Samples.RangeStart, n.Samples.RangeEnd = &start, &end
	}
	n.Segments = nil
	n.StagedAt = nil
	n.Revision++
}

// dataExtent returns the span covered by the night's annotations and
// samples, where each sample is taken to cover one epoch of width w. ok is
// false when the night has no data.
func (n *Night) dataExtent(w time.Duration) (start, end time.Time, ok bool) {
	extend := func(from, to time.Time) {
		if !ok || from.Before(start) {
			start = from
		}
		if !ok || to.After(end) {
			end = to
		}
		ok = true
	}
	for _, a := range n.Samples.Annotations {
		extend(a.Start, a.End)
	}
	for _, s := range n.Samples.HeartRate {
		extend(s.Timestamp, s.Timestamp.Add(w))
	}
	for _, s := range n.Samples.HRV {
		extend(s.Timestamp, s.Timestamp.Add(w))
	}
	for _, m := range n.Samples.Motion {
		extend(m.Timestamp, m.Timestamp.Add(w))
	}
	return start, end, ok
}
