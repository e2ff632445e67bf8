package sleepstage

import (
	"fmt"
	"time"
)

// Stage is a sleep stage label. The set of stages is closed; use ParseStage
// to convert untrusted input.
type Stage string

const (
	StageInBed         Stage = "inBed"
	StageAwake         Stage = "awake"
	StageREM           Stage = "remSleep"
	StageCore          Stage = "coreSleep"
	StageDeep          Stage = "deepSleep"
	StageAsleepGeneric Stage = "asleepGeneric"
)

var stageDepth = map[Stage]float64{
	StageInBed:         -0.5,
	StageAwake:         0.0,
	StageREM:           1.0,
	StageAsleepGeneric: 1.5,
	StageCore:          2.0,
	StageDeep:          3.0,
}

// ParseStage returns the Stage named by s, or an error if s is not a known stage.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown sleep stage %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	_, ok := stageDepth[s]
	return ok
}

// Depth returns the chart depth used by hypnogram renderers. The engine
// itself only compares stages for equality.
func (s Stage) Depth() float64 {
	return stageDepth[s]
}

// Asleep reports whether s counts towards total sleep time.
func (s Stage) Asleep() bool {
	switch s {
	case StageAsleepGeneric, StageDeep, StageREM, StageCore:
		return true
	}
	return false
}

// Sample is a timestamped heart-rate (bpm) or HRV (ms) reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Motion levels reported by activity sensors.
const (
	MotionStill       = 0
	MotionLight       = 1
	MotionSignificant = 2
)

// MotionSample is a timestamped movement level in {0, 1, 2}.
type MotionSample struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
}

// Annotation is a pre-classified stage interval [Start, End) from an
// authoritative source.
type Annotation struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Stage Stage     `json:"stage"`
}

// Covers reports whether t lies in [a.Start, a.End).
func (a Annotation) Covers(t time.Time) bool {
	return !t.Before(a.Start) && t.Before(a.End)
}

// Epoch is one fixed-width slice of the requested range with its aggregated
// signals. Nil pointers mean "no data", never zero.
type Epoch struct {
	Start            time.Time
	End              time.Time
	AverageHeartRate *float64
	AverageHRV       *float64
	MotionLevel      int
	OfficialStage    *Stage
	InferredStage    *Stage
}

// EffectiveStage returns the official stage if present, else the inferred
// stage, else StageAsleepGeneric.
func (e Epoch) EffectiveStage() Stage {
	if e.OfficialStage != nil {
		return *e.OfficialStage
	}
	if e.InferredStage != nil {
		return *e.InferredStage
	}
	return StageAsleepGeneric
}

// Segment is a maximal run of one stage over [Start, End).
type Segment struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Stage Stage     `json:"stage"`
}

// Duration returns End - Start.
func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Input bundles everything one inference run needs.
type Input struct {
	Annotations []Annotation
	HeartRate   []Sample
	HRV         []Sample
	Motion      []MotionSample
	RangeStart  time.Time
	RangeEnd    time.Time
	// EpochWidth defaults to DefaultEpochWidth when zero or negative.
	EpochWidth time.Duration
}
