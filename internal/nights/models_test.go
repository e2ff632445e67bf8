package nights

import (
	"errors"
	"testing"
	"time"

	"sleepstage-service/internal/sleepstage"
)

func TestSampleBatch_Validate(t *testing.T) {
	start, end := t0, t0.Add(time.Hour)
	farFuture := time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		batch SampleBatch
		ok    bool
	}{
		{"empty", SampleBatch{}, true},
		{"zero_values_are_data", SampleBatch{HeartRate: []sleepstage.Sample{{Timestamp: t0, Value: 0}}, HRV: []sleepstage.Sample{{Timestamp: t0, Value: 0}}}, true},
		{"negative_heart_rate", SampleBatch{HeartRate: []sleepstage.Sample{{Timestamp: t0, Value: -1}}}, false},
		{"negative_hrv", SampleBatch{HRV: []sleepstage.Sample{{Timestamp: t0, Value: -1}}}, false},
		{"motion_level_out_of_range", SampleBatch{Motion: []sleepstage.MotionSample{{Timestamp: t0, Level: -1}}}, false},
		{"unknown_stage", SampleBatch{Annotations: []sleepstage.Annotation{{Start: t0, End: end, Stage: "nap"}}}, false},
		{"empty_annotation", SampleBatch{Annotations: []sleepstage.Annotation{{Start: t0, End: t0, Stage: sleepstage.StageInBed}}}, false},
		{"half_range", SampleBatch{RangeStart: &start}, false},
		{"missing_heart_rate_timestamp", SampleBatch{HeartRate: []sleepstage.Sample{{Value: 50}}}, false},
		{"missing_hrv_timestamp", SampleBatch{HRV: []sleepstage.Sample{{Value: 20}}}, false},
		{"missing_motion_timestamp", SampleBatch{Motion: []sleepstage.MotionSample{{Level: 0}}}, false},
		{"annotation_from_year_one", SampleBatch{Annotations: []sleepstage.Annotation{{End: end, Stage: sleepstage.StageInBed}}}, false},
		{"timestamp_before_1970", SampleBatch{HeartRate: []sleepstage.Sample{{Timestamp: time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC), Value: 50}}}, false},
		{"range_past_9999", SampleBatch{RangeStart: &start, RangeEnd: &farFuture}, false},
		{"full_range", SampleBatch{RangeStart: &start, RangeEnd: &end}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.batch.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidBatch) {
				t.Errorf("expected ErrInvalidBatch, got %v", err)
			}
		})
	}
}

func TestNight_append_bumps_revision(t *testing.T) {
	n := &Night{}
	n.append(SampleBatch{})
	n.append(SampleBatch{HRV: []sleepstage.Sample{{Timestamp: t0, Value: 10}}})
	if n.Revision != 2 {
		t.Errorf("expected revision 2, got %d", n.Revision)
	}
}

func TestNight_dataExtent(t *testing.T) {
	n := &Night{}
	if _, _, ok := n.dataExtent(sleepstage.DefaultEpochWidth); ok {
		t.Error("empty night should have no extent")
	}

	n.Samples = SampleBatch{
		Annotations: []sleepstage.Annotation{{Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour), Stage: sleepstage.StageInBed}},
		Motion:      []sleepstage.MotionSample{{Timestamp: t0, Level: 0}},
		HRV:         []sleepstage.Sample{{Timestamp: t0.Add(3 * time.Hour), Value: 10}},
	}
	start, end, ok := n.dataExtent(sleepstage.DefaultEpochWidth)
	if !ok || !start.Equal(t0) || !end.Equal(t0.Add(3*time.Hour+sleepstage.DefaultEpochWidth)) {
		t.Errorf("unexpected extent %v-%v ok=%v", start, end, ok)
	}
}
