package scadabridge

import (
	"context"
	"time"
)

// Spoofer feeds simulated measurements that rise by a fixed amount every interval.
type Spoofer struct {
	Interval time.Duration
	values   [3]float64
}

var spoofIncrements = [3]struct {
	id   ChannelID
	step float64
}{
	{ChannelPlantACPowerGenerated, 1},
	{ChannelGridReactivePower, 2},
	{ChannelGridExportedPower, 3},
}

func NewSpoofer(interval time.Duration) *Spoofer {
	return &Spoofer{Interval: interval}
}

// Tick advances the simulated values and hands them to sink.
func (s *Spoofer) Tick(sink MeasurementSink) {
	for i, inc := range spoofIncrements {
		s.values[i] += inc.step
		sink.UpdateMeasurement(inc.id, s.values[i])
	}
}

func (s *Spoofer) Run(ctx context.Context, sink MeasurementSink) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(sink)
		}
	}
}
