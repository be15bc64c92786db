package handler

import (
	"fmt"

	"github.com/ldbc/driver/internal/driver/operation"
)

// ErrAlreadyInitialized is returned when Init is called on a handler that has already been initialized.
type ErrAlreadyInitialized struct {
	HandlerId string
	State     State
}

func (err *ErrAlreadyInitialized) Error() string {
	return fmt.Sprintf("operation handler %s already initialized (state %s)", err.HandlerId, err.State)
}

// ErrUnknownOperationType is returned when no execute function is registered for an operation type.
type ErrUnknownOperationType struct {
	Type operation.Type
}

func (err *ErrUnknownOperationType) Error() string {
	return fmt.Sprintf("no execute function registered for operation type %s", err.Type)
}

// ErrDuplicateOperationType is returned when a second execute function is registered for a type.
type ErrDuplicateOperationType struct {
	Type operation.Type
}

func (err *ErrDuplicateOperationType) Error() string {
	return fmt.Sprintf("execute function for operation type %s already registered", err.Type)
}
