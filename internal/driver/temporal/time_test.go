package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTime_AddSaturates(t *testing.T) {
	assert.Equal(t, MaxTime, MaxTime.Add(time.Second))
	assert.Equal(t, MinTime, MinTime.Add(time.Second))
	assert.Equal(t, MaxTime, Time(math64Max-5).Add(time.Duration(10)))
	assert.Equal(t, Time(110), Time(100).Add(10))
	assert.Equal(t, Time(90), Time(100).Add(-10))
}

const math64Max = int64(^uint64(0) >> 1)

func TestTime_SubAndOrdering(t *testing.T) {
	a := FromMilli(100)
	b := FromMilli(150)
	assert.Equal(t, 50*time.Millisecond, b.Sub(a))
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, a, Min(a, b))
	assert.Equal(t, b, Max(a, b))
	assert.Equal(t, int64(150), b.AsMilli())
}

func TestTime_RoundTripsWallClock(t *testing.T) {
	now := time.Now()
	assert.True(t, now.Equal(FromTime(now).AsTime()))
}

func TestTimeUnit(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected TimeUnit
		value    int64
	}{
		"nanoseconds":  {input: "NANOSECONDS", expected: Nanoseconds, value: 1_500_000_000},
		"microseconds": {input: "microseconds", expected: Microseconds, value: 1_500_000},
		"milliseconds": {input: "Milliseconds", expected: Milliseconds, value: 1_500},
		"seconds":      {input: "SECONDS", expected: Seconds, value: 1},
		"minutes":      {input: "MINUTES", expected: Minutes, value: 0},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			unit, err := ParseTimeUnit(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, unit)
			assert.Equal(t, tc.value, unit.Convert(1500*time.Millisecond))
		})
	}
}

func TestParseTimeUnit_Invalid(t *testing.T) {
	_, err := ParseTimeUnit("HOURS")
	assert.Error(t, err)
}

func TestTimeMapper(t *testing.T) {
	mapper := TimeMapper{
		LogicalStart:     FromMilli(1000),
		WallStart:        FromMilli(50_000),
		CompressionRatio: 0.5,
	}
	assert.Equal(t, FromMilli(50_000), mapper.Map(FromMilli(1000)))
	assert.Equal(t, FromMilli(50_050), mapper.Map(FromMilli(1100)))
	assert.Equal(t, MinTime, mapper.Map(MinTime))

	identity := TimeMapper{LogicalStart: 0, WallStart: 0}
	assert.Equal(t, Time(42), identity.Map(42))
}
