package scheduling

import (
	"sync"

	"github.com/ldbc/driver/internal/driver/operation"
	"github.com/ldbc/driver/internal/driver/temporal"
)

// SpinnerCheck is a condition the spinner waits for, in addition to the scheduled start time.
type SpinnerCheck interface {
	// Check reports whether the condition currently holds. Once it has returned true the check is
	// considered satisfied and is not evaluated again.
	Check() bool
	// HandleFailedCheck is called if the spinner gives up while the check is still pending.
	HandleFailedCheck(op *operation.Operation)
}

// CheckFunc adapts a predicate into a SpinnerCheck with no failure handling.
type CheckFunc func() bool

func (f CheckFunc) Check() bool {
	return f()
}

func (f CheckFunc) HandleFailedCheck(*operation.Operation) {}

// MultiCheck is satisfied once every member has been true at least once; members need not be true at
// the same time. It is safe to add members while another goroutine evaluates the check.
type MultiCheck struct {
	mu      sync.Mutex
	pending []SpinnerCheck
}

func NewMultiCheck(checks ...SpinnerCheck) *MultiCheck {
	m := &MultiCheck{}
	for _, c := range checks {
		m.Add(c)
	}
	return m
}

func (m *MultiCheck) Add(check SpinnerCheck) {
	if check == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, check)
}

// Check evaluates every pending member once and retires the ones that pass.
func (m *MultiCheck) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return true
	}
	stillPending := make([]SpinnerCheck, 0, len(m.pending))
	for _, c := range m.pending {
		if !c.Check() {
			stillPending = append(stillPending, c)
		}
	}
	m.pending = stillPending
	return len(m.pending) == 0
}

func (m *MultiCheck) HandleFailedCheck(op *operation.Operation) {
	m.mu.Lock()
	pending := make([]SpinnerCheck, len(m.pending))
	copy(pending, m.pending)
	m.mu.Unlock()
	for _, c := range pending {
		c.HandleFailedCheck(op)
	}
}

// Pending returns the number of members that have not yet been satisfied.
func (m *MultiCheck) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CompletionTimeReader exposes the global completion time without blocking.
type CompletionTimeReader interface {
	GlobalCompletionTime() temporal.Time
}

// CompletionTimeCheck passes once the global completion time has reached the dependency time.
type CompletionTimeCheck struct {
	reader         CompletionTimeReader
	dependencyTime temporal.Time
	onFailure      func(op *operation.Operation, gct temporal.Time)
}

// NewCompletionTimeCheck returns a check on the given dependency time. onFailure may be nil.
func NewCompletionTimeCheck(
	reader CompletionTimeReader,
	dependencyTime temporal.Time,
	onFailure func(op *operation.Operation, gct temporal.Time),
) *CompletionTimeCheck {
	return &CompletionTimeCheck{
		reader:         reader,
		dependencyTime: dependencyTime,
		onFailure:      onFailure,
	}
}

func (c *CompletionTimeCheck) Check() bool {
	return c.reader.GlobalCompletionTime() >= c.dependencyTime
}

func (c *CompletionTimeCheck) HandleFailedCheck(op *operation.Operation) {
	if c.onFailure != nil {
		c.onFailure(op, c.reader.GlobalCompletionTime())
	}
}
