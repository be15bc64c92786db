package operation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ldbc/driver/internal/driver/temporal"
)

// Type discriminates operations; handlers and db adapters are keyed by it.
type Type string

// Operation is one unit of work issued against the system under test.
//
// Timestamp is the logical time assigned by the workload generator. The scheduled start time is the
// wall-clock time the operation should be dispatched at; it is assigned exactly once, by a scheduler,
// before the operation is executed. Everything else is immutable after construction.
type Operation struct {
	typ            Type
	timestamp      temporal.Time
	dependencyTime temporal.Time
	hasDependency  bool
	params         map[string]string

	mu                 sync.RWMutex
	scheduledStartTime temporal.Time
	scheduled          bool
}

func New(typ Type, timestamp temporal.Time, params map[string]string) *Operation {
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return &Operation{
		typ:       typ,
		timestamp: timestamp,
		params:    copied,
	}
}

// WithDependencyTime returns the operation after marking it as runnable only once the global
// completion time has reached t. It must be called before the operation is handed to a handler.
func (op *Operation) WithDependencyTime(t temporal.Time) *Operation {
	op.dependencyTime = t
	op.hasDependency = true
	return op
}

func (op *Operation) Type() Type {
	return op.typ
}

func (op *Operation) Timestamp() temporal.Time {
	return op.timestamp
}

// DependencyTime returns the global completion time required before this operation may run.
// The second return value is false for unconstrained operations.
func (op *Operation) DependencyTime() (temporal.Time, bool) {
	return op.dependencyTime, op.hasDependency
}

func (op *Operation) Param(key string) string {
	return op.params[key]
}

func (op *Operation) Params() map[string]string {
	copied := make(map[string]string, len(op.params))
	for k, v := range op.params {
		copied[k] = v
	}
	return copied
}

func (op *Operation) ScheduledStartTime() (temporal.Time, bool) {
	op.mu.RLock()
	defer op.mu.RUnlock()
	return op.scheduledStartTime, op.scheduled
}

// SetScheduledStartTime assigns the scheduled start time. Re-assigning the same value is a no-op;
// assigning a different value once one has been set fails.
func (op *Operation) SetScheduledStartTime(t temporal.Time) error {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.scheduled {
		if op.scheduledStartTime == t {
			return nil
		}
		return &ErrScheduledStartTimeAlreadyAssigned{
			Type:     op.typ,
			Assigned: op.scheduledStartTime,
			Proposed: t,
		}
	}
	op.scheduledStartTime = t
	op.scheduled = true
	return nil
}

func (op *Operation) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Operation{type=%s, timestamp=%d", op.typ, int64(op.timestamp)))
	if scheduled, ok := op.ScheduledStartTime(); ok {
		sb.WriteString(fmt.Sprintf(", scheduledStartTime=%d", int64(scheduled)))
	} else {
		sb.WriteString(", scheduledStartTime=unassigned")
	}
	if op.hasDependency {
		sb.WriteString(fmt.Sprintf(", dependencyTime=%d", int64(op.dependencyTime)))
	}
	if len(op.params) > 0 {
		keys := make([]string, 0, len(op.params))
		for k := range op.params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(", params=[")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(k + ":" + op.params[k])
		}
		sb.WriteString("]")
	}
	sb.WriteString("}")
	return sb.String()
}

// Result describes one successful execution of an operation. Db adapters may populate Value; the
// timing fields are filled in by the handler that ran the operation.
type Result struct {
	OperationType      Type
	ScheduledStartTime temporal.Time
	ActualStartTime    temporal.Time
	RunDuration        time.Duration
	Value              interface{}
}

// StartDelay is how late the operation started relative to its schedule.
func (r *Result) StartDelay() time.Duration {
	return r.ActualStartTime.Sub(r.ScheduledStartTime)
}

func (r *Result) String() string {
	return fmt.Sprintf(
		"Result{type=%s, scheduledStartTime=%d, actualStartTime=%d, runDuration=%s}",
		r.OperationType, int64(r.ScheduledStartTime), int64(r.ActualStartTime), r.RunDuration)
}
