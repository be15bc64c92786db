// Package metrics records the result of every executed operation and summarises them into a report.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

type typeAggregate struct {
	mu            sync.Mutex
	count         int64
	totalRunTime  float64
	sumOfSquares  float64
	minRunTime    time.Duration
	maxRunTime    time.Duration
	maxStartDelay time.Duration
	lateCount     int64
}

func (a *typeAggregate) add(result *operation.Result, lateThreshold time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := result.RunDuration
	if a.count == 0 || d < a.minRunTime {
		a.minRunTime = d
	}
	if d > a.maxRunTime {
		a.maxRunTime = d
	}
	a.count++
	a.totalRunTime += float64(d)
	a.sumOfSquares += float64(d) * float64(d)
	delay := result.StartDelay()
	if delay > a.maxStartDelay {
		a.maxStartDelay = delay
	}
	if lateThreshold > 0 && delay > lateThreshold {
		a.lateCount++
	}
}

// ConcurrentMetricsService accepts operation results from every worker at once. Results of different
// operation types never contend: each type is aggregated under its own lock.
type ConcurrentMetricsService struct {
	clock         clock.PassiveClock
	unit          temporal.TimeUnit
	lateThreshold time.Duration
	collectors    *collectors

	aggregates sync.Map
	count      atomic.Int64
	started    time.Time
}

// NewConcurrentMetricsService registers the service's collectors with registerer. Results that started
// more than lateThreshold after their scheduled start time are counted as late in the report.
func NewConcurrentMetricsService(
	clk clock.PassiveClock,
	registerer prometheus.Registerer,
	unit temporal.TimeUnit,
	lateThreshold time.Duration,
) *ConcurrentMetricsService {
	return &ConcurrentMetricsService{
		clock:         clk,
		unit:          unit,
		lateThreshold: lateThreshold,
		collectors:    newCollectors(registerer),
		started:       clk.Now(),
	}
}

func (s *ConcurrentMetricsService) SubmitOperationResult(result *operation.Result) error {
	if result == nil {
		return errors.WithStack(&ErrMetricsCollection{Message: "nil operation result"})
	}
	if result.OperationType == "" {
		return errors.WithStack(&ErrMetricsCollection{Message: "operation result has no operation type"})
	}
	if result.RunDuration < 0 {
		return errors.WithStack(&ErrMetricsCollection{
			Message: "negative run duration " + result.RunDuration.String() + " for " + string(result.OperationType),
		})
	}
	typ := string(result.OperationType)
	s.collectors.runDuration.WithLabelValues(typ).Observe(result.RunDuration.Seconds())
	if delay := result.StartDelay(); delay > 0 {
		s.collectors.startDelay.WithLabelValues(typ).Observe(delay.Seconds())
	} else {
		s.collectors.startDelay.WithLabelValues(typ).Observe(0)
	}
	s.collectors.results.WithLabelValues(typ).Inc()

	aggregate, _ := s.aggregates.LoadOrStore(result.OperationType, &typeAggregate{})
	aggregate.(*typeAggregate).add(result, s.lateThreshold)
	s.count.Add(1)
	return nil
}

// Count returns the number of results recorded so far.
func (s *ConcurrentMetricsService) Count() int64 {
	return s.count.Load()
}

// Status is a point-in-time summary used for progress output.
type Status struct {
	Count      int64
	Elapsed    time.Duration
	Throughput float64
}

func (s *ConcurrentMetricsService) Status() Status {
	count := s.count.Load()
	elapsed := s.clock.Since(s.started)
	return Status{
		Count:      count,
		Elapsed:    elapsed,
		Throughput: throughput(count, elapsed),
	}
}

// Report summarises every recorded result. Operation types are listed in name order.
func (s *ConcurrentMetricsService) Report(runId string, errorCount int) *Report {
	finished := s.clock.Now()
	var operations []*OperationReport
	s.aggregates.Range(func(key, value interface{}) bool {
		operations = append(operations, s.operationReport(key.(operation.Type), value.(*typeAggregate)))
		return true
	})
	slices.SortFunc(operations, func(a, b *OperationReport) bool {
		return a.Type < b.Type
	})
	var total int64
	for _, o := range operations {
		total += o.Count
	}
	return &Report{
		RunId:      runId,
		StartTime:  s.started,
		FinishTime: finished,
		TimeUnit:   s.unit,
		TotalCount: total,
		ErrorCount: errorCount,
		Throughput: throughput(total, finished.Sub(s.started)),
		Operations: operations,
	}
}

func (s *ConcurrentMetricsService) operationReport(typ operation.Type, a *typeAggregate) *OperationReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := &OperationReport{
		Type:          typ,
		Count:         a.count,
		MinRunTime:    s.unit.Convert(a.minRunTime),
		MaxRunTime:    s.unit.Convert(a.maxRunTime),
		MaxStartDelay: s.unit.Convert(a.maxStartDelay),
		LateCount:     a.lateCount,
	}
	if a.count > 0 {
		mean := a.totalRunTime / float64(a.count)
		variance := a.sumOfSquares/float64(a.count) - mean*mean
		if variance < 0 {
			variance = 0
		}
		r.MeanRunTime = s.unit.ConvertFloat(time.Duration(mean))
		r.RunTimeStandardDeviation = s.unit.ConvertFloat(time.Duration(math.Sqrt(variance)))
	}
	return r
}

func throughput(count int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed.Seconds()
}
