// Package scheduling decides when operations run: the windowed scheduler assigns scheduled start times
// and the spinner holds a worker until an operation's start time has arrived and its checks pass.
package scheduling

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// DefaultSleepDuration bounds how far the spinner can overshoot a scheduled start time.
const DefaultSleepDuration = 100 * time.Microsecond

// Spinner blocks the calling worker until an operation may start. It polls rather than blocking on a
// single event because the wake condition combines the clock with arbitrary external predicates.
type Spinner struct {
	clock         clock.Clock
	policy        ExecutionDelayPolicy
	sleepDuration time.Duration
}

// NewSpinner returns a spinner that re-checks every sleepDuration. A sleepDuration of zero yields the
// processor between checks instead of sleeping.
func NewSpinner(clk clock.Clock, policy ExecutionDelayPolicy, sleepDuration time.Duration) *Spinner {
	if sleepDuration < 0 {
		sleepDuration = DefaultSleepDuration
	}
	return &Spinner{
		clock:         clk,
		policy:        policy,
		sleepDuration: sleepDuration,
	}
}

func (s *Spinner) Clock() clock.PassiveClock {
	return s.clock
}

// WaitForScheduledStartTime returns nil once the clock has reached the operation's scheduled start time
// and check has passed. Timing violations are referred to the delay policy; if the policy abandons the
// operation a typed error is returned. check may be nil.
func (s *Spinner) WaitForScheduledStartTime(ctx context.Context, op *operation.Operation, check SpinnerCheck) error {
	scheduled, ok := op.ScheduledStartTime()
	if !ok {
		if !s.policy.HandleUnassignedScheduledStartTime(op) {
			return errors.WithStack(&ErrUnassignedScheduledStartTime{Type: op.Type()})
		}
		scheduled = temporal.FromTime(s.clock.Now())
	}

	tolerated := s.policy.ToleratedDelay()
	deadline := scheduled.Add(tolerated)
	checkPassed := check == nil
	delayHandled := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !checkPassed {
			checkPassed = check.Check()
		}
		now := temporal.FromTime(s.clock.Now())
		if !delayHandled && now > deadline {
			delayHandled = true
			delay := now.Sub(scheduled)
			if !s.policy.HandleExcessiveDelay(op, delay) {
				if !checkPassed {
					check.HandleFailedCheck(op)
				}
				return errors.WithStack(&ErrExcessiveDelay{
					Type:               op.Type(),
					ScheduledStartTime: scheduled,
					Delay:              delay,
					ToleratedDelay:     tolerated,
				})
			}
		}
		if checkPassed && now >= scheduled {
			return nil
		}
		s.pause(scheduled.Sub(now))
	}
}

func (s *Spinner) pause(untilScheduled time.Duration) {
	d := s.sleepDuration
	if untilScheduled > 0 && untilScheduled < d {
		d = untilScheduled
	}
	if d <= 0 {
		runtime.Gosched()
		return
	}
	s.clock.Sleep(d)
}
