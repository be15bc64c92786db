package temporal

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeUnit is the unit durations are expressed in when results are reported.
type TimeUnit string

const (
	Nanoseconds  TimeUnit = "NANOSECONDS"
	Microseconds TimeUnit = "MICROSECONDS"
	Milliseconds TimeUnit = "MILLISECONDS"
	Seconds      TimeUnit = "SECONDS"
	Minutes      TimeUnit = "MINUTES"
)

var unitSizes = map[TimeUnit]time.Duration{
	Nanoseconds:  time.Nanosecond,
	Microseconds: time.Microsecond,
	Milliseconds: time.Millisecond,
	Seconds:      time.Second,
	Minutes:      time.Minute,
}

// ParseTimeUnit accepts the upper or lower case unit names, e.g. "MILLISECONDS" or "milliseconds".
func ParseTimeUnit(s string) (TimeUnit, error) {
	unit := TimeUnit(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := unitSizes[unit]; !ok {
		return "", errors.Errorf("unsupported time unit %q", s)
	}
	return unit, nil
}

// Convert truncates d to a whole number of units.
func (u TimeUnit) Convert(d time.Duration) int64 {
	size, ok := unitSizes[u]
	if !ok {
		size = time.Millisecond
	}
	return int64(d / size)
}

// ConvertFloat is Convert without truncation.
func (u TimeUnit) ConvertFloat(d time.Duration) float64 {
	size, ok := unitSizes[u]
	if !ok {
		size = time.Millisecond
	}
	return float64(d) / float64(size)
}
