// Package handler runs a single operation: it waits for the operation's scheduled start time and
// dependencies, executes it against the system under test and records the outcome.
package handler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/ldbc/driver/internal/common/util"
	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/reporting"
	"github.com/ldbc/driver/internal/driver/scheduling"
	"github.com/ldbc/driver/internal/driver/temporal"
)

type State int

const (
	Created State = iota
	Initialized
	Waiting
	Executing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Initialized:
		return "Initialized"
	case Waiting:
		return "Waiting"
	case Executing:
		return "Executing"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Spinner interface {
	WaitForScheduledStartTime(ctx context.Context, op *operation.Operation, check scheduling.SpinnerCheck) error
}

// CompletionTimeSubmitter receives the scheduled start time of every operation a worker finishes.
type CompletionTimeSubmitter interface {
	SubmitCompletedTime(t temporal.Time) error
}

type MetricsService interface {
	SubmitOperationResult(result *operation.Result) error
}

// OperationHandler owns one operation for its whole life. A handler is used exactly once: it is
// initialized, called by a single worker and then discarded.
type OperationHandler struct {
	id      string
	execute ExecuteFunc
	clock   clock.PassiveClock
	checks  *scheduling.MultiCheck

	mu             sync.Mutex
	state          State
	spinner        Spinner
	op             *operation.Operation
	completionTime CompletionTimeSubmitter
	errorReporter  reporting.ErrorReporter
	metrics        MetricsService
}

func NewOperationHandler(execute ExecuteFunc, clk clock.PassiveClock) *OperationHandler {
	return &OperationHandler{
		id:      util.NewULID(),
		execute: execute,
		clock:   clk,
		checks:  scheduling.NewMultiCheck(),
		state:   Created,
	}
}

// Init supplies the operation and the services the handler reports to. It may be called only once.
func (h *OperationHandler) Init(
	spinner Spinner,
	op *operation.Operation,
	completionTime CompletionTimeSubmitter,
	errorReporter reporting.ErrorReporter,
	metrics MetricsService,
) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Created {
		return errors.WithStack(&ErrAlreadyInitialized{HandlerId: h.id, State: h.state})
	}
	if spinner == nil || op == nil || completionTime == nil || errorReporter == nil || metrics == nil {
		return errors.Errorf("operation handler %s: all collaborators must be non-nil", h.id)
	}
	h.spinner = spinner
	h.op = op
	h.completionTime = completionTime
	h.errorReporter = errorReporter
	h.metrics = metrics
	h.state = Initialized
	return nil
}

// AddCheck attaches a condition the operation must wait for in addition to its scheduled start time.
func (h *OperationHandler) AddCheck(check scheduling.SpinnerCheck) {
	h.checks.Add(check)
}

func (h *OperationHandler) Id() string {
	return h.id
}

// Operation returns the handled operation, or nil before Init.
func (h *OperationHandler) Operation() *operation.Operation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.op
}

func (h *OperationHandler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Call waits for the operation to become runnable, executes it and records the result. It never
// returns an error: every failure is sent to the error reporter and nil is returned instead of a result.
func (h *OperationHandler) Call(ctx context.Context) *operation.Result {
	h.mu.Lock()
	if h.state != Initialized {
		state := h.state
		reporter := h.errorReporter
		h.mu.Unlock()
		message := fmt.Sprintf("operation handler called in state %s; expected %s", state, Initialized)
		if reporter == nil {
			log.WithField("handler", h.id).Error(message)
		} else {
			reporter.ReportError(h, message)
		}
		return nil
	}
	h.state = Waiting
	op := h.op
	h.mu.Unlock()

	if err := h.spinner.WaitForScheduledStartTime(ctx, op, h.checks); err != nil {
		if ctx.Err() != nil {
			log.WithField("handler", h.id).Debugf("Abandoning %s: %s", op, err)
			h.setState(Failed)
			return nil
		}
		h.fail(op, "Error waiting for scheduled start time", err)
		return nil
	}
	// Scheduled start time is guaranteed unless the delay policy tolerated an unassigned one.
	scheduled, ok := op.ScheduledStartTime()
	h.setState(Executing)

	start := h.clock.Now()
	if !ok {
		scheduled = temporal.FromTime(start)
	}
	result, err := h.executeRecovering(ctx, op)
	runDuration := h.clock.Since(start)
	if err != nil {
		h.fail(op, "Error executing operation", err)
		return nil
	}
	if result == nil {
		result = &operation.Result{}
	}
	result.OperationType = op.Type()
	result.ScheduledStartTime = scheduled
	result.ActualStartTime = temporal.FromTime(start)
	result.RunDuration = runDuration

	// Completion time first: it records that the operation ran, whether or not its metrics are kept.
	if err := h.completionTime.SubmitCompletedTime(scheduled); err != nil {
		h.fail(op, "Error submitting completion time", err)
		return nil
	}
	if err := h.metrics.SubmitOperationResult(result); err != nil {
		h.fail(op, "Error submitting operation result", err)
		return nil
	}
	h.setState(Completed)
	return result
}

func (h *OperationHandler) executeRecovering(ctx context.Context, op *operation.Operation) (result *operation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &operation.DbError{
				Type:    op.Type(),
				Message: fmt.Sprintf("panic: %v\n%s", r, debug.Stack()),
			}
		}
	}()
	return h.execute(ctx, op)
}

func (h *OperationHandler) fail(op *operation.Operation, message string, err error) {
	h.setState(Failed)
	h.errorReporter.ReportError(h, fmt.Sprintf("%s\n%s\n%s", message, op, reporting.StackTraceToString(err)))
}

func (h *OperationHandler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}
