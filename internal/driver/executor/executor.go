// Package executor runs a windowed workload on a fixed pool of workers.
package executor

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ldbc/driver/internal/common/drivercontext"
	"github.com/ldbc/driver/internal/driver/completiontime"
	"github.com/ldbc/driver/internal/driver/handler"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/reporting"
	"github.com/ldbc/driver/internal/driver/scheduling"
	"github.com/ldbc/driver/internal/driver/temporal"
	"github.com/ldbc/driver/internal/driver/workload"
)

const defaultWorkerQueueLength = 1024

// WindowSource yields windows of operations in time order; Next returns io.EOF when there are no more.
type WindowSource interface {
	Next() (*workload.Window, error)
}

// A task is either a handler to call or, when handler is nil, a window boundary: every operation the
// worker will receive afterwards is scheduled after boundary.
type task struct {
	handler  *handler.OperationHandler
	boundary temporal.Time
}

type worker struct {
	id      string
	tracker *completiontime.LocalCompletionTimeTracker
	tasks   chan task
}

// Executor dispatches each window's operations across its workers round-robin, in scheduled start time
// order, so that every worker sees non-decreasing scheduled start times.
type Executor struct {
	workerCount   int
	queueLength   int
	service       *completiontime.Service
	registry      *handler.Registry
	spinner       handler.Spinner
	errorReporter reporting.ErrorReporter
	metrics       handler.MetricsService
	scheduler     scheduling.UniformWindowedScheduler[*handler.OperationHandler]

	dispatched atomic.Int64
	skipped    atomic.Int64
}

func NewExecutor(
	workerCount int,
	service *completiontime.Service,
	registry *handler.Registry,
	spinner handler.Spinner,
	errorReporter reporting.ErrorReporter,
	metrics handler.MetricsService,
) *Executor {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Executor{
		workerCount:   workerCount,
		queueLength:   defaultWorkerQueueLength,
		service:       service,
		registry:      registry,
		spinner:       spinner,
		errorReporter: errorReporter,
		metrics:       metrics,
	}
}

// Dispatched is the number of operations handed to workers so far.
func (e *Executor) Dispatched() int64 {
	return e.dispatched.Load()
}

// Skipped is the number of operations that could not be handed to a worker.
func (e *Executor) Skipped() int64 {
	return e.skipped.Load()
}

// Execute runs every window from source and returns once all workers have drained. start is the
// wall-clock time the workload begins at; no operation may be scheduled before it.
func (e *Executor) Execute(ctx *drivercontext.Context, source WindowSource, start temporal.Time) error {
	workers := make([]*worker, e.workerCount)
	for i := range workers {
		id := fmt.Sprintf("worker-%d", i)
		tracker, err := e.service.RegisterLocalSource(id)
		if err != nil {
			return err
		}
		if err := tracker.SubmitCompletedTime(start.Add(-1)); err != nil {
			return err
		}
		workers[i] = &worker{id: id, tracker: tracker, tasks: make(chan task, e.queueLength)}
	}

	g, gctx := drivercontext.ErrGroup(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			e.work(gctx, w)
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			for _, w := range workers {
				close(w.tasks)
			}
		}()
		return e.dispatch(gctx, source, workers)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Executor) work(ctx *drivercontext.Context, w *worker) {
	log := ctx.Log.WithField("worker", w.id)
	log.Debug("Worker started")
	for t := range w.tasks {
		if t.handler == nil {
			if err := w.tracker.SubmitCompletedTime(t.boundary); err != nil {
				e.errorReporter.ReportError(w.tracker, reporting.StackTraceToString(err))
			}
			continue
		}
		t.handler.Call(ctx)
	}
	// Nothing more will be scheduled on this worker, so it must not hold the completion time back.
	if err := w.tracker.SubmitCompletedTime(temporal.MaxTime); err != nil {
		e.errorReporter.ReportError(w.tracker, reporting.StackTraceToString(err))
	}
	log.Debug("Worker finished")
}

func (e *Executor) dispatch(ctx *drivercontext.Context, source WindowSource, workers []*worker) error {
	next := 0
	for {
		window, err := source.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithMessage(err, "error reading next window")
		}

		boundary := window.Start.Add(-1)
		for _, w := range workers {
			if !send(ctx, w, task{boundary: boundary}) {
				return nil
			}
		}

		handlers, assigned := e.prepare(window, workers, next)
		scheduled, err := e.scheduler.Schedule(scheduling.Window[*handler.OperationHandler]{
			Start:    window.Start,
			End:      window.End,
			Contents: handlers,
		})
		if err != nil {
			e.errorReporter.ReportError("scheduler", reporting.StackTraceToString(err))
		}
		for i, h := range scheduled {
			if !send(ctx, assigned[i], task{handler: h}) {
				return nil
			}
			e.dispatched.Add(1)
		}
		next = (next + len(scheduled)) % len(workers)
	}
}

// prepare creates the handlers of a window, initialized against the trackers of the workers they are
// assigned to, starting round-robin from workers[next].
func (e *Executor) prepare(
	window *workload.Window,
	workers []*worker,
	next int,
) ([]*handler.OperationHandler, []*worker) {
	handlers := make([]*handler.OperationHandler, 0, len(window.Operations))
	assigned := make([]*worker, 0, len(window.Operations))
	for _, op := range window.Operations {
		h, err := e.registry.NewHandler(op.Type())
		if err != nil {
			e.skip(op, err)
			continue
		}
		w := workers[(next+len(handlers))%len(workers)]
		if err := h.Init(e.spinner, op, w.tracker, e.errorReporter, e.metrics); err != nil {
			e.skip(op, err)
			continue
		}
		if dependency, ok := op.DependencyTime(); ok {
			h.AddCheck(scheduling.NewCompletionTimeCheck(e.service, dependency, e.reportDependencyFailure))
		}
		handlers = append(handlers, h)
		assigned = append(assigned, w)
	}
	return handlers, assigned
}

func (e *Executor) skip(op *operation.Operation, err error) {
	e.skipped.Add(1)
	e.errorReporter.ReportError("executor", fmt.Sprintf("Skipping %s: %s", op, err))
}

func (e *Executor) reportDependencyFailure(op *operation.Operation, gct temporal.Time) {
	dependency, _ := op.DependencyTime()
	e.errorReporter.ReportError("executor", fmt.Sprintf(
		"Gave up waiting for dependencies of %s: global completion time %s has not reached %s",
		op, gct, dependency))
}

func send(ctx *drivercontext.Context, w *worker, t task) bool {
	select {
	case w.tasks <- t:
		return true
	case <-ctx.Done():
		return false
	}
}
