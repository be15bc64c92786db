// Package temporal holds the time primitives shared by the driver: a point on the run's monotonic
// clock (Time) and conversions between logical workload time, wall-clock time and reporting units.
//
// Durations are plain time.Duration values; all arithmetic happens in nanoseconds.
package temporal

import (
	"fmt"
	"math"
	"time"
)

// Time is a point on the driver clock, expressed as nanoseconds since the Unix epoch.
type Time int64

const (
	// MinTime sorts before every other Time and stands in for negative infinity.
	MinTime Time = math.MinInt64
	// MaxTime sorts after every other Time and stands in for positive infinity.
	MaxTime Time = math.MaxInt64
)

func FromTime(t time.Time) Time {
	return Time(t.UnixNano())
}

func FromMilli(ms int64) Time {
	return Time(ms * int64(time.Millisecond))
}

func (t Time) AsTime() time.Time {
	return time.Unix(0, int64(t))
}

func (t Time) AsMilli() int64 {
	return int64(t) / int64(time.Millisecond)
}

// Add returns t+d, saturating at MinTime and MaxTime instead of overflowing.
func (t Time) Add(d time.Duration) Time {
	if t == MaxTime || t == MinTime {
		return t
	}
	sum := int64(t) + int64(d)
	if d > 0 && sum < int64(t) {
		return MaxTime
	}
	if d < 0 && sum > int64(t) {
		return MinTime
	}
	return Time(sum)
}

// Sub returns the duration t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(int64(t) - int64(u))
}

func (t Time) Before(u Time) bool {
	return t < u
}

func (t Time) After(u Time) bool {
	return t > u
}

func (t Time) String() string {
	switch t {
	case MinTime:
		return "-inf"
	case MaxTime:
		return "+inf"
	}
	return fmt.Sprintf("%s (%d)", t.AsTime().UTC().Format(time.RFC3339Nano), int64(t))
}

func Min(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

func Max(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}
