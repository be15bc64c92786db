package scheduling

import (
	"fmt"
	"time"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// ErrUnassignedScheduledStartTime is returned by the spinner for an operation that was never scheduled,
// when the delay policy does not tolerate it.
type ErrUnassignedScheduledStartTime struct {
	Type operation.Type
}

func (err *ErrUnassignedScheduledStartTime) Error() string {
	return fmt.Sprintf("%s operation has no scheduled start time", err.Type)
}

// ErrExcessiveDelay is returned by the spinner when an operation could not start within the tolerated
// delay and the delay policy does not tolerate it.
type ErrExcessiveDelay struct {
	Type               operation.Type
	ScheduledStartTime temporal.Time
	Delay              time.Duration
	ToleratedDelay     time.Duration
}

func (err *ErrExcessiveDelay) Error() string {
	return fmt.Sprintf(
		"%s operation scheduled at %d was delayed by %s; tolerated delay is %s",
		err.Type, int64(err.ScheduledStartTime), err.Delay, err.ToleratedDelay)
}
