package sleepstage

// Compress folds time-ordered, contiguous epochs into maximal segments of
// equal effective stage. The last segment ends at the last epoch's end,
// which BuildEpochs caps at the range end.
func Compress(epochs []Epoch) []Segment {
	if len(epochs) == 0 {
		return nil
	}

	var segments []Segment
	cur := Segment{Start: epochs[0].Start, Stage: epochs[0].EffectiveStage()}
	for _, e := range epochs[1:] {
		st := e.EffectiveStage()
		if st == cur.Stage {
			continue
		}
		cur.End = e.Start
		segments = append(segments, cur)
		cur = Segment{Start: e.Start, Stage: st}
	}
	cur.End = epochs[len(epochs)-1].End
	return append(segments, cur)
}

// Infer runs the epoch builder and the compressor over in.
func Infer(in Input) []Segment {
	epochs := BuildEpochs(in.Annotations, in.HeartRate, in.HRV, in.Motion, in.RangeStart, in.RangeEnd, in.EpochWidth)
	return Compress(epochs)
}
