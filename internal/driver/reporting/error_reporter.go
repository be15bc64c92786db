// Package reporting collects the diagnostics produced while a benchmark runs. Reporting never fails and
// never stops the run; a failing operation is always routed here instead of being returned.
package reporting

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ldbc/driver/internal/common/logging"
)

// ErrorReporter is the sink every driver component reports failures to.
// Implementations must be safe for concurrent use.
type ErrorReporter interface {
	ReportError(source interface{}, message string)
}

// ReportedError is one accumulated diagnostic.
type ReportedError struct {
	Source   string
	Message  string
	Reported time.Time
}

func (e ReportedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// ConcurrentErrorReporter accumulates every reported error and logs them. Console output is throttled
// so a storm of identical failures does not drown the log; suppressed errors are still accumulated.
type ConcurrentErrorReporter struct {
	limiter *rate.Limiter

	mu         sync.Mutex
	errors     []ReportedError
	suppressed int
}

// NewConcurrentErrorReporter logs at most logsPerSecond errors per second with the given burst.
// A non-positive logsPerSecond disables throttling.
func NewConcurrentErrorReporter(logsPerSecond float64, burst int) *ConcurrentErrorReporter {
	limit := rate.Inf
	if logsPerSecond > 0 {
		limit = rate.Limit(logsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &ConcurrentErrorReporter{
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *ConcurrentErrorReporter) ReportError(source interface{}, message string) {
	reported := ReportedError{
		Source:   WhoAmI(source),
		Message:  message,
		Reported: time.Now(),
	}

	r.mu.Lock()
	r.errors = append(r.errors, reported)
	allowed := r.limiter.Allow()
	if !allowed {
		r.suppressed++
	}
	r.mu.Unlock()

	if allowed {
		log.WithField("source", reported.Source).Error(message)
	}
}

// ErrorEncountered returns true if any error has been reported.
func (r *ConcurrentErrorReporter) ErrorEncountered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors) > 0
}

func (r *ConcurrentErrorReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// Suppressed returns how many reported errors were not written to the log.
func (r *ConcurrentErrorReporter) Suppressed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suppressed
}

// Errors returns a snapshot of every error reported so far, in the order they were reported.
func (r *ConcurrentErrorReporter) Errors() []ReportedError {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make([]ReportedError, len(r.errors))
	copy(snapshot, r.errors)
	return snapshot
}

// Err combines every reported error into one, or returns nil if none were reported.
func (r *ConcurrentErrorReporter) Err() error {
	var result *multierror.Error
	for _, e := range r.Errors() {
		result = multierror.Append(result, e)
	}
	return result.ErrorOrNil()
}

// WhoAmI describes a reporting component, e.g. "*handler.OperationHandler[01H...]" for values that
// expose an Id, or the dynamic type name otherwise. Strings are used as-is.
func WhoAmI(source interface{}) string {
	switch s := source.(type) {
	case nil:
		return "<unknown>"
	case string:
		return s
	case interface{ Id() string }:
		return fmt.Sprintf("%s[%s]", reflect.TypeOf(source), s.Id())
	}
	return reflect.TypeOf(source).String()
}

// StackTraceToString renders err with the stack trace recorded where it was created, if it carries one.
func StackTraceToString(err error) string {
	return logging.FormatWithStack(err)
}
