package metrics

import "fmt"

// ErrMetricsCollection is returned when an operation result cannot be recorded.
type ErrMetricsCollection struct {
	Message string
}

func (err *ErrMetricsCollection) Error() string {
	return fmt.Sprintf("error collecting metrics: %s", err.Message)
}
