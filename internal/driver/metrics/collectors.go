package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ldbc/driver/internal/driver/temporal"
)

const (
	namespace = "ldbc"
	subsystem = "driver"
	typeLabel = "operation_type"
)

type collectors struct {
	runDuration *prometheus.HistogramVec
	startDelay  *prometheus.HistogramVec
	results     *prometheus.CounterVec
}

func newCollectors(registerer prometheus.Registerer) *collectors {
	factory := promauto.With(registerer)
	return &collectors{
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_run_duration_seconds",
				Help:      "Time spent executing operations against the system under test",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
			},
			[]string{typeLabel},
		),
		startDelay: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_start_delay_seconds",
				Help:      "How late operations started relative to their scheduled start time",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
			},
			[]string{typeLabel},
		),
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_results_total",
				Help:      "Number of operations executed successfully",
			},
			[]string{typeLabel},
		),
	}
}

// RegisterCompletionTimeGauge exposes the global completion time, in seconds since the epoch, as a gauge.
func RegisterCompletionTimeGauge(registerer prometheus.Registerer, gct func() temporal.Time) error {
	return registerer.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "global_completion_time_seconds",
			Help:      "Global completion time of the run; operations scheduled before it have finished",
		},
		func() float64 {
			t := gct()
			if t == temporal.MinTime || t == temporal.MaxTime {
				return 0
			}
			return float64(t) / 1e9
		},
	))
}

// RegisterErrorCountGauge exposes the number of errors reported during the run.
func RegisterErrorCountGauge(registerer prometheus.Registerer, count func() int) error {
	return registerer.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reported_errors",
			Help:      "Number of errors reported during the run",
		},
		func() float64 {
			return float64(count())
		},
	))
}
