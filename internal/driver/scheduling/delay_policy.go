package scheduling

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ldbc/driver/internal/driver/operation"
)

// ExecutionDelayPolicy adjudicates timing violations. Both handlers return true when the violation is
// tolerated and the operation may still run, false when the operation must be abandoned.
type ExecutionDelayPolicy interface {
	ToleratedDelay() time.Duration
	HandleUnassignedScheduledStartTime(op *operation.Operation) bool
	HandleExcessiveDelay(op *operation.Operation, delay time.Duration) bool
}

// LoggingExecutionDelayPolicy logs every violation. Operations without a scheduled start time are always
// abandoned; late operations are abandoned unless TolerateExcessiveDelay is set.
type LoggingExecutionDelayPolicy struct {
	toleratedDelay         time.Duration
	tolerateExcessiveDelay bool
}

func NewLoggingExecutionDelayPolicy(toleratedDelay time.Duration, tolerateExcessiveDelay bool) *LoggingExecutionDelayPolicy {
	return &LoggingExecutionDelayPolicy{
		toleratedDelay:         toleratedDelay,
		tolerateExcessiveDelay: tolerateExcessiveDelay,
	}
}

func (p *LoggingExecutionDelayPolicy) ToleratedDelay() time.Duration {
	return p.toleratedDelay
}

func (p *LoggingExecutionDelayPolicy) HandleUnassignedScheduledStartTime(op *operation.Operation) bool {
	log.WithField("operation", op.String()).Error("Operation has no scheduled start time")
	return false
}

func (p *LoggingExecutionDelayPolicy) HandleExcessiveDelay(op *operation.Operation, delay time.Duration) bool {
	log.WithFields(log.Fields{
		"operation":      op.String(),
		"delay":          delay,
		"toleratedDelay": p.toleratedDelay,
	}).Errorf("Tolerated scheduled start time delay exceeded")
	return p.tolerateExcessiveDelay
}
