package engine

import "time"

// Recorder receives posting telemetry. The metrics package implements it.
type Recorder interface {
	RecordOutcome(status, code string)
	RecordBatch(duration time.Duration, claimed int)
	RecordRunFinalized()
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(string, string)   {}
func (noopRecorder) RecordBatch(time.Duration, int) {}
func (noopRecorder) RecordRunFinalized()            {}
