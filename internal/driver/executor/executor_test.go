package executor

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/common/drivercontext"
	"github.com/ldbc/driver/internal/driver/completiontime"
	"github.com/ldbc/driver/internal/driver/handler"
	"github.com/ldbc/driver/internal/driver/metrics"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/reporting"
	"github.com/ldbc/driver/internal/driver/scheduling"
	"github.com/ldbc/driver/internal/driver/temporal"
	"github.com/ldbc/driver/internal/driver/workload"
)

const windowSize = time.Millisecond

type sliceWindowSource struct {
	windows []*workload.Window
}

func (s *sliceWindowSource) Next() (*workload.Window, error) {
	if len(s.windows) == 0 {
		return nil, io.EOF
	}
	w := s.windows[0]
	s.windows = s.windows[1:]
	return w, nil
}

type executedLog struct {
	mu  sync.Mutex
	ops []*operation.Operation
}

func (l *executedLog) execute(_ context.Context, op *operation.Operation) (*operation.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
	return &operation.Result{}, nil
}

type fixture struct {
	executor *Executor
	service  *completiontime.Service
	reporter *reporting.ConcurrentErrorReporter
	metrics  *metrics.ConcurrentMetricsService
	executed *executedLog
}

func newFixture(t *testing.T, workerCount int) *fixture {
	executed := &executedLog{}
	f := newFixtureWith(t, workerCount, executed.execute)
	f.executed = executed
	return f
}

func newFixtureWith(t *testing.T, workerCount int, execute handler.ExecuteFunc) *fixture {
	clk := clock.RealClock{}
	service := completiontime.NewService(clk)
	reporter := reporting.NewConcurrentErrorReporter(0, 0)
	metricsService := metrics.NewConcurrentMetricsService(clk, prometheus.NewRegistry(), temporal.Milliseconds, 0)
	registry := handler.NewRegistry(clk)
	require.NoError(t, registry.Register(workload.ReadOperation, execute))
	require.NoError(t, registry.Register(workload.WriteOperation, execute))
	spinner := scheduling.NewSpinner(clk, scheduling.NewLoggingExecutionDelayPolicy(time.Minute, true), 100*time.Microsecond)
	return &fixture{
		executor: NewExecutor(workerCount, service, registry, spinner, reporter, metricsService),
		service:  service,
		reporter: reporter,
		metrics:  metricsService,
	}
}

// windows builds count consecutive windows from start, each holding perWindow operations of typ. From the
// second window on, every operation depends on the last instant of the previous window.
func windows(start temporal.Time, count, perWindow int, typ operation.Type) []*workload.Window {
	result := make([]*workload.Window, 0, count)
	for i := 0; i < count; i++ {
		windowStart := start.Add(time.Duration(i) * windowSize)
		w := &workload.Window{Start: windowStart, End: windowStart.Add(windowSize)}
		for j := 0; j < perWindow; j++ {
			op := operation.New(typ, windowStart, nil)
			if i > 0 {
				op = op.WithDependencyTime(windowStart.Add(-1))
			}
			w.Operations = append(w.Operations, op)
		}
		result = append(result, w)
	}
	return result
}

func TestExecute_RunsEveryOperation(t *testing.T) {
	tests := map[string]struct {
		workerCount int
		windows     int
		perWindow   int
	}{
		"single worker":                {workerCount: 1, windows: 5, perWindow: 4},
		"several workers":              {workerCount: 4, windows: 5, perWindow: 10},
		"more workers than operations": {workerCount: 8, windows: 3, perWindow: 1},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, tc.workerCount)
			start := temporal.FromTime(time.Now())
			source := &sliceWindowSource{windows: windows(start, tc.windows, tc.perWindow, workload.ReadOperation)}

			ctx, cancel := drivercontext.WithTimeout(drivercontext.Background(), 10*time.Second)
			defer cancel()
			require.NoError(t, f.executor.Execute(ctx, source, start))

			expected := tc.windows * tc.perWindow
			assert.Len(t, f.executed.ops, expected)
			assert.Equal(t, int64(expected), f.metrics.Count())
			assert.Equal(t, int64(expected), f.executor.Dispatched())
			assert.Zero(t, f.executor.Skipped())
			assert.False(t, f.reporter.ErrorEncountered(), "%v", f.reporter.Errors())
			assert.Equal(t, temporal.MaxTime, f.service.GlobalCompletionTime())
		})
	}
}

func TestExecute_OperationsStartWithinTheirWindow(t *testing.T) {
	f := newFixture(t, 3)
	start := temporal.FromTime(time.Now())
	ws := windows(start, 4, 5, workload.WriteOperation)
	source := &sliceWindowSource{windows: append([]*workload.Window(nil), ws...)}

	ctx, cancel := drivercontext.WithTimeout(drivercontext.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.executor.Execute(ctx, source, start))

	for _, w := range ws {
		for _, op := range w.Operations {
			scheduled, ok := op.ScheduledStartTime()
			require.True(t, ok)
			assert.False(t, scheduled.Before(w.Start), "%s", op)
			assert.True(t, scheduled.Before(w.End), "%s", op)
		}
	}
}

func TestExecute_SkipsUnknownOperationTypes(t *testing.T) {
	f := newFixture(t, 2)
	start := temporal.FromTime(time.Now())
	ws := windows(start, 2, 3, workload.ReadOperation)
	ws[1].Operations = append(ws[1].Operations, operation.New(workload.DeleteOperation, ws[1].Start, nil))
	source := &sliceWindowSource{windows: ws}

	ctx, cancel := drivercontext.WithTimeout(drivercontext.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, f.executor.Execute(ctx, source, start))

	assert.Len(t, f.executed.ops, 6)
	assert.Equal(t, int64(1), f.executor.Skipped())
	require.Equal(t, 1, f.reporter.Count())
	assert.Contains(t, f.reporter.Errors()[0].Message, string(workload.DeleteOperation))
	assert.Equal(t, temporal.MaxTime, f.service.GlobalCompletionTime())
}

func TestExecute_StopsWhenCancelled(t *testing.T) {
	f := newFixture(t, 2)
	start := temporal.FromTime(time.Now().Add(time.Hour))
	source := &sliceWindowSource{windows: windows(start, 3, 2, workload.ReadOperation)}

	ctx, cancel := drivercontext.WithCancel(drivercontext.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := f.executor.Execute(ctx, source, start)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.executed.ops)
	assert.False(t, f.reporter.ErrorEncountered())
}

func TestExecute_ReturnsSourceErrors(t *testing.T) {
	f := newFixture(t, 2)
	start := temporal.FromTime(time.Now())
	failing := windowSourceFunc(func() (*workload.Window, error) {
		return nil, assert.AnError
	})

	err := f.executor.Execute(drivercontext.Background(), failing, start)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, temporal.MaxTime, f.service.GlobalCompletionTime())
}

// timingLog records when each operation started and finished. Writes are slow, reads are not.
type timingLog struct {
	mu        sync.Mutex
	started   map[*operation.Operation]time.Time
	finished  map[*operation.Operation]time.Time
	writeTime time.Duration
}

func newTimingLog(writeTime time.Duration) *timingLog {
	return &timingLog{
		started:   map[*operation.Operation]time.Time{},
		finished:  map[*operation.Operation]time.Time{},
		writeTime: writeTime,
	}
}

func (l *timingLog) execute(_ context.Context, op *operation.Operation) (*operation.Result, error) {
	started := time.Now()
	if op.Type() == workload.WriteOperation {
		time.Sleep(l.writeTime)
	}
	finished := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started[op] = started
	l.finished[op] = finished
	return &operation.Result{}, nil
}

// dependentWorkload returns count operations spaced interval apart from logical time zero. Every fourth
// one is a write; every operation at or after delta depends on the logical time delta before it.
func dependentWorkload(count int, interval, delta time.Duration) []*operation.Operation {
	ops := make([]*operation.Operation, 0, count)
	for i := 0; i < count; i++ {
		timestamp := temporal.Time(0).Add(time.Duration(i) * interval)
		typ := workload.ReadOperation
		if i%4 == 0 {
			typ = workload.WriteOperation
		}
		op := operation.New(typ, timestamp, nil)
		if timestamp >= temporal.Time(delta) {
			op = op.WithDependencyTime(timestamp.Add(-delta))
		}
		ops = append(ops, op)
	}
	return ops
}

func TestExecute_DependentOperationsStartAfterTheirDependenciesFinish(t *testing.T) {
	const (
		operationCount = 40
		interval       = 2 * time.Millisecond
		window         = 10 * time.Millisecond
	)
	tests := map[string]struct {
		delta         time.Duration
		expectSkipped bool
	}{
		"dependencies in earlier windows": {delta: window},
		"dependencies in distant windows": {delta: 3 * window},
		"some dependencies in own window": {delta: 4 * time.Millisecond, expectSkipped: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			timings := newTimingLog(15 * time.Millisecond)
			f := newFixtureWith(t, 4, timings.execute)
			wallStart := temporal.FromTime(time.Now().Add(20 * time.Millisecond))
			mapper := temporal.TimeMapper{LogicalStart: 0, WallStart: wallStart, CompressionRatio: 1}
			source, err := workload.NewWindower(
				workload.NewSliceGenerator(dependentWorkload(operationCount, interval, tc.delta)...), mapper, window, f.reporter)
			require.NoError(t, err)

			ctx, cancel := drivercontext.WithTimeout(drivercontext.Background(), 30*time.Second)
			defer cancel()
			require.NoError(t, f.executor.Execute(ctx, source, wallStart))

			if tc.expectSkipped {
				assert.Greater(t, source.Skipped(), int64(0))
			} else {
				assert.Zero(t, source.Skipped())
			}
			assert.Equal(t, int(source.Skipped()), f.reporter.Count(), "%v", f.reporter.Errors())
			require.Len(t, timings.started, operationCount-int(source.Skipped()))

			checked := 0
			for dependent, started := range timings.started {
				if dependent.Timestamp() < temporal.Time(tc.delta) {
					continue
				}
				dependency := dependent.Timestamp().Add(-tc.delta)
				for op, finished := range timings.finished {
					if op.Timestamp() > dependency {
						continue
					}
					checked++
					assert.False(t, started.Before(finished),
						"%s started at %s, before %s it depends on finished at %s",
						dependent, started.Format(time.StampMicro), op, finished.Format(time.StampMicro))
				}
			}
			assert.Greater(t, checked, 0)
		})
	}
}

type windowSourceFunc func() (*workload.Window, error)

func (f windowSourceFunc) Next() (*workload.Window, error) {
	return f()
}
