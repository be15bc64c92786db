package temporal

import "time"

// TimeMapper maps the logical timestamps a workload generator assigns onto the wall clock of this run.
// Offsets from LogicalStart are multiplied by CompressionRatio, so a ratio of 0.5 replays the
// workload twice as fast and a ratio of 1 reproduces it as generated.
type TimeMapper struct {
	LogicalStart     Time
	WallStart        Time
	CompressionRatio float64
}

func (m TimeMapper) Map(logical Time) Time {
	switch logical {
	case MinTime, MaxTime:
		return logical
	}
	offset := logical.Sub(m.LogicalStart)
	ratio := m.CompressionRatio
	if ratio <= 0 {
		ratio = 1
	}
	return m.WallStart.Add(time.Duration(float64(offset) * ratio))
}
