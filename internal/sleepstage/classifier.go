package sleepstage

// Fixed classification thresholds.
const (
	deepMaxHeartRate = 55.0
	deepMaxHRV       = 30.0
	remMinHeartRate  = 65.0
	remMinHRV        = 50.0
)

// Classify infers a stage from an epoch's average heart rate, average HRV
// and motion level. Rules are evaluated in order and the first match wins:
//
//  1. significant motion          -> awake
//  2. hr < 55, hrv < 30, still    -> deep
//  3. hr > 65, hrv > 50, still    -> REM
//  4. anything else               -> core
//
// Classify is total: NaN inputs fail every comparison and fall through to
// core (or awake when motion is significant).
func Classify(heartRate, hrv float64, motionLevel int) Stage {
	if motionLevel == MotionSignificant {
		return StageAwake
	}
	if motionLevel == MotionStill {
		if heartRate < deepMaxHeartRate && hrv < deepMaxHRV {
			return StageDeep
		}
		if heartRate > remMinHeartRate && hrv > remMinHRV {
			return StageREM
		}
	}
	return StageCore
}
