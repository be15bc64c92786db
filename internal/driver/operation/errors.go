package operation

import (
	"fmt"

	"github.com/ldbc/driver/internal/driver/temporal"
)

// ErrScheduledStartTimeAlreadyAssigned is returned when a scheduler tries to move an operation that
// already has a different scheduled start time.
type ErrScheduledStartTimeAlreadyAssigned struct {
	Type     Type
	Assigned temporal.Time
	Proposed temporal.Time
}

func (err *ErrScheduledStartTimeAlreadyAssigned) Error() string {
	return fmt.Sprintf(
		"scheduled start time of %s operation already assigned to %d; refusing to reassign to %d",
		err.Type, int64(err.Assigned), int64(err.Proposed))
}

// DbError is returned by db adapters when an operation could not be executed against the system
// under test.
type DbError struct {
	Type    Type
	Message string
	Cause   error
}

func (err *DbError) Error() string {
	s := fmt.Sprintf("error executing %s operation", err.Type)
	if err.Message != "" {
		s = s + fmt.Sprintf(": %s", err.Message)
	}
	if err.Cause != nil {
		s = s + fmt.Sprintf(": %v", err.Cause)
	}
	return s
}

func (err *DbError) Unwrap() error {
	return err.Cause
}
