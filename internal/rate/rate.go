package rate

import (
	"github.com/rcrowley/go-metrics"
)

// Tracker estimates the arrival rate of a stream of events in events per
// second over a recent window. Implementations must be safe for concurrent
// callers and must report 0.0 before the first event.
type Tracker interface {
	Arrived()
	Rate() float64
}

type meterTracker struct {
	meter metrics.Meter
}

// NewTracker returns a Tracker backed by a one-minute exponentially weighted
// moving average.
func NewTracker() Tracker {
	return &meterTracker{meter: metrics.NewMeter()}
}

func (t *meterTracker) Arrived() {
	t.meter.Mark(1)
}

func (t *meterTracker) Rate() float64 {
	return t.meter.Rate1()
}
