package scheduling

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// Schedulable is anything carrying an operation to be scheduled, typically an operation handler.
type Schedulable interface {
	Operation() *operation.Operation
}

// Window is a batch of handlers whose operations should start within [Start, End).
type Window[H Schedulable] struct {
	Start    temporal.Time
	End      temporal.Time
	Contents []H
}

// UniformWindowedScheduler spreads the operations of a window evenly across it.
type UniformWindowedScheduler[H Schedulable] struct{}

// Schedule gives the i-th of n handlers the start time Start + i*((End-Start)/n), keeping the input
// order. The interval is truncated to whole nanoseconds, so very full windows may assign the same start
// time to neighbouring handlers.
func (UniformWindowedScheduler[H]) Schedule(window Window[H]) ([]H, error) {
	return AssignUniformStartTimes(window.Contents, window.Start, window.End)
}

// AssignUniformStartTimes is the scheduling step of UniformWindowedScheduler for callers without a Window.
func AssignUniformStartTimes[H Schedulable](handlers []H, windowStart, windowEnd temporal.Time) ([]H, error) {
	if len(handlers) == 0 {
		return handlers, nil
	}
	windowSize := int64(windowEnd) - int64(windowStart)
	if windowSize < 0 {
		windowSize = 0
	}
	interleave := windowSize / int64(len(handlers))

	var result *multierror.Error
	for i, h := range handlers {
		startTime := windowStart + temporal.Time(interleave*int64(i))
		if err := h.Operation().SetScheduledStartTime(startTime); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "handler %d", i))
		}
	}
	return handlers, result.ErrorOrNil()
}
