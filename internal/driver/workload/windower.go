package workload

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/reporting"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// Window is a batch of operations whose wall-clock timestamps fall within [Start, End).
type Window struct {
	Start      temporal.Time
	End        temporal.Time
	Operations []*operation.Operation
}

// Windower maps operations from logical onto wall-clock time and groups them into consecutive windows of
// a fixed size, starting at the mapper's wall start.
//
// The operations it returns are copies whose dependency time, if any, is expressed on the wall clock
// and raised to the last instant of the window containing it. Operations are later rescheduled
// uniformly within their window, so an operation that depended on a time inside a window may only run
// once that whole window has completed.
//
// A dependency inside the operation's own window cannot be honoured, since the window only completes
// after the operation itself. Such operations are reported to the error reporter and left out; without
// a reporter they fail the run.
type Windower struct {
	source   Generator
	mapper   temporal.TimeMapper
	size     time.Duration
	reporter reporting.ErrorReporter
	skipped  atomic.Int64

	pending     *operation.Operation
	pendingWall temporal.Time
	lastWall    temporal.Time
	done        bool
}

// NewWindower returns a windower over source. reporter may be nil.
func NewWindower(
	source Generator,
	mapper temporal.TimeMapper,
	size time.Duration,
	reporter reporting.ErrorReporter,
) (*Windower, error) {
	if size <= 0 {
		return nil, errors.Errorf("window size must be positive, got %s", size)
	}
	return &Windower{
		source:   source,
		mapper:   mapper,
		size:     size,
		reporter: reporter,
		lastWall: temporal.MinTime,
	}, nil
}

// Skipped is the number of operations left out because they depended on a time inside their own window.
func (w *Windower) Skipped() int64 {
	return w.skipped.Load()
}

// Next returns the next non-empty window, or io.EOF once the source is exhausted.
func (w *Windower) Next() (*Window, error) {
	for {
		if w.pending == nil {
			if err := w.pull(); err != nil {
				return nil, err
			}
		}
		start, end := w.windowOf(w.pendingWall)
		window := &Window{Start: start, End: end}
		for w.pending != nil && w.pendingWall < end {
			op, err := w.remap(w.pending, start)
			if err != nil {
				if w.reporter == nil {
					return nil, err
				}
				w.skipped.Add(1)
				w.reporter.ReportError("windower", fmt.Sprintf("Skipping %s: %s", w.pending, err))
			} else {
				window.Operations = append(window.Operations, op)
			}
			w.pending = nil
			if err := w.pull(); err != nil && err != io.EOF {
				return nil, err
			}
		}
		if len(window.Operations) > 0 {
			return window, nil
		}
	}
}

func (w *Windower) pull() error {
	if w.done {
		return io.EOF
	}
	op, err := w.source.Next()
	if err == io.EOF {
		w.done = true
		return io.EOF
	}
	if err != nil {
		return errors.WithMessage(err, "error reading workload")
	}
	wall := w.mapper.Map(op.Timestamp())
	if wall < w.lastWall {
		return errors.Errorf("operation timestamps must not decrease: %s maps to %d, after %d", op, int64(wall), int64(w.lastWall))
	}
	if wall < w.mapper.WallStart {
		return errors.Errorf("operation %s precedes the start of the workload", op)
	}
	w.lastWall = wall
	w.pending = op
	w.pendingWall = wall
	return nil
}

func (w *Windower) windowOf(wall temporal.Time) (temporal.Time, temporal.Time) {
	index := int64(wall.Sub(w.mapper.WallStart) / w.size)
	start := w.mapper.WallStart.Add(time.Duration(index) * w.size)
	return start, start.Add(w.size)
}

func (w *Windower) remap(op *operation.Operation, windowStart temporal.Time) (*operation.Operation, error) {
	remapped := operation.New(op.Type(), op.Timestamp(), op.Params())
	logicalDependency, ok := op.DependencyTime()
	if !ok {
		return remapped, nil
	}
	dependency := w.mapper.Map(logicalDependency)
	if dependency != temporal.MinTime && dependency >= w.mapper.WallStart {
		if dependency >= windowStart {
			return nil, errors.Errorf(
				"dependency time %d falls inside the operation's own window starting at %d; windowSize must not exceed the distance to dependencies",
				int64(dependency), int64(windowStart))
		}
		_, end := w.windowOf(dependency)
		dependency = end.Add(-1)
	}
	return remapped.WithDependencyTime(dependency), nil
}
