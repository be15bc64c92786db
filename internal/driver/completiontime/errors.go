package completiontime

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ldbc/driver/internal/driver/temporal"
)

// ErrCompletionTimeWaitTimeout is returned by WaitForCompletionTimeAtLeast when the global completion
// time did not reach the requested value before the timeout elapsed.
var ErrCompletionTimeWaitTimeout = errors.New("timed out waiting for global completion time")

// ErrOutOfOrderCompletionTime is returned when a source submits a completion time lower than one it
// submitted before. The submission is discarded.
type ErrOutOfOrderCompletionTime struct {
	SourceId  string
	Peer      bool
	Last      temporal.Time
	Submitted temporal.Time
}

func (err *ErrOutOfOrderCompletionTime) Error() string {
	kind := "local source"
	if err.Peer {
		kind = "peer"
	}
	return fmt.Sprintf(
		"%s %q submitted completion time %d which is lower than its previous submission %d",
		kind, err.SourceId, int64(err.Submitted), int64(err.Last))
}

// ErrUnknownSource is returned when a completion time is submitted for a local source that was never
// registered.
type ErrUnknownSource struct {
	SourceId string
}

func (err *ErrUnknownSource) Error() string {
	return fmt.Sprintf("local completion time source %q is not registered", err.SourceId)
}

// ErrSourceAlreadyRegistered is returned when a local source id is registered twice.
type ErrSourceAlreadyRegistered struct {
	SourceId string
}

func (err *ErrSourceAlreadyRegistered) Error() string {
	return fmt.Sprintf("local completion time source %q is already registered", err.SourceId)
}
